// Command tomorecon reconstructs parallel-beam tomography scans: it imports
// an acquisition, corrects and normalizes the projections, resolves the
// rotation axis, reconstructs slices and exports them.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := Root.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
