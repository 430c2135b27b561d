package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

type VanishAPI interface {
	ToggleVanishMode(ctx context.Context, threadKey string, enabled bool) error
	ClearVanishMessages(ctx context.Context, threadKey string) error
}

type vanishRequest struct {
	ThreadKey string `json:"thread_key"`
	Enabled   bool   `json:"enabled"`
}

// Vanish mode operations go straight to the server; they are never queued, so
// they refuse to run while offline.

func ToggleVanishMode(remote VanishAPI, reach Reachability) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !reach.IsOnline() {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "offline")
		}
		request := &vanishRequest{}
		if err := c.Bind(request); err != nil {
			return err
		}
		if err := remote.ToggleVanishMode(c.Request().Context(), request.ThreadKey, request.Enabled); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

func ClearVanishMessages(remote VanishAPI, reach Reachability) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !reach.IsOnline() {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "offline")
		}
		request := &vanishRequest{}
		if err := c.Bind(request); err != nil {
			return err
		}
		if err := remote.ClearVanishMessages(c.Request().Context(), request.ThreadKey); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
