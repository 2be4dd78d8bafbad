// Package main provides the entry point for the tripweave CLI.
package main

func main() {
	Execute()
}
