// dwconv - halo-partitioned depthwise-separable convolution
package main

import (
	"fmt"
	"os"
)

const (
	AppName    = "dwconv"
	AppVersion = "1.0.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
