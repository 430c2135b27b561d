package model

import "errors"

var ErrorNoCredential = errors.New("no valid credential")
var ErrorRunInProgress = errors.New("sync run already in progress")
var ErrorActionNotFound = errors.New("action not found")
var ErrorRecordNotFound = errors.New("record not found")
var ErrorUnknownActionType = errors.New("unknown action type")
var ErrorRemoteIDUnresolved = errors.New("record has no remote id yet")
