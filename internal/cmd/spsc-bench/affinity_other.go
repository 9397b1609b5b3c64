//go:build !linux

package main

import "errors"

func pinCurrentThread(cpu int) error {
	return errors.New("thread pinning is only supported on linux")
}
