// Command larder stores and queries JSON records in embedded object stores.
package main

import "github.com/mesh-intelligence/larder/internal/cli"

func main() {
	cli.Execute()
}
