// Command gitcache is the CLI front-end for the local git mirror/checkout
// cache: clone, sync, verify, repair, list, and clean subcommands over the
// internal/cache orchestrator.
package main

func main() {
	Execute()
}
