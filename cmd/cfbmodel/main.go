// Command cfbmodel trains college football game prediction models and
// predicts weekly games from the College Football Data API.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	a := &app{}
	if err := execute(context.Background(), a, newRootCmd(a)); err != nil {
		os.Exit(1)
	}
}

// execute runs root and releases the app's resources whether or not the
// command succeeded.
func execute(ctx context.Context, a *app, root *cobra.Command) error {
	defer a.close()
	return root.ExecuteContext(ctx)
}
