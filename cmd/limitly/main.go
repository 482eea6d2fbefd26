// Command limitly runs the hosted rate limit service.
package main

import "github.com/emmanueltaiwo/limitly/cmd/limitly/cmd"

func main() {
	cmd.Execute()
}
