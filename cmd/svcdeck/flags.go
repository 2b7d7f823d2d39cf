package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// RemoteFlags selects a running server instead of probing locally.
type RemoteFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Token      string
	CACert     string
	Insecure   bool
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	Name string
	RemoteFlags
}

// ActionFlags holds flags for start, stop and restart.
type ActionFlags struct {
	Name   string
	Action string
	RemoteFlags
}

// HostFlags holds flags for the host command.
type HostFlags struct {
	RemoteFlags
}

// TokenFlags holds flags for the token command.
type TokenFlags struct {
	Subject string
	Role    string
	TTL     time.Duration
	Secret  string
}
