package main

import "time"

const (
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond
)
