package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/game-progress/internal/lambda"
)

func newLambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run under the AWS Lambda runtime (API Gateway proxy events)",
		Args:  cobra.NoArgs,
		RunE: runWithApp(func(_ *cobra.Command, appInstance App) error {
			lambda.Start(appInstance)
			return nil
		}),
	}
}
