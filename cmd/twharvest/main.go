// Command twharvest is the CLI driver for the batch media-harvesting
// engine: it loads configuration, wires the chosen scraper engine,
// and runs one of login, whoami, logout, download, or gui.
package main

func main() {
	Execute()
}
