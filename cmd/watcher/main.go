// Package main provides the entry point for the watcher CLI.
package main

func main() {
	Execute()
}
