// Command dashboard serves the forecast-vs-actual dashboard and the metrics
// endpoint until interrupted.
package main

import (
	"github.com/tigerroll/gridcast/internal/app"
)

func main() {
	app.RunDashboard()
}
