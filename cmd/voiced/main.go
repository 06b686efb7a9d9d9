// Command voiced prepares the host for the voice-cloning service and then
// runs it: privilege drop, data directories, device detection, memory
// advisory, model warm-up, launch.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
