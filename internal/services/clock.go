package services

import "time"

// unixNow is the default clock for services whose Now hook is unset.
func unixNow() int64 { return time.Now().Unix() }
