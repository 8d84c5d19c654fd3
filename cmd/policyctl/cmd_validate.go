package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kitloop-backend/internal/engine"
	"kitloop-backend/internal/metadata"
)

func newValidateUploadCmd() *cobra.Command {
	var req metadata.UploadRequest

	cmd := &cobra.Command{
		Use:   "validate-upload",
		Short: "Run the upload admission checks against the configured rules",
		Long: `Run the upload admission checks for one proposed upload.
Prints "ok" or the reason code of the first failing check; a rejection exits
with status 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}

			result := engine.ValidateUploadRequest(reg, req)
			if !result.OK {
				fmt.Fprintln(cmd.OutOrStdout(), result.ReasonCode)
				return errDenied
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&req.UseCase, "use-case", "", "Upload use case (e.g. gear_image)")
	cmd.Flags().StringVar(&req.MimeType, "mime", "", "Declared MIME type")
	cmd.Flags().Int64Var(&req.SizeBytes, "size", 0, "Declared size in bytes")
	cmd.Flags().StringVar(&req.Path, "path", "", "Destination storage key")
	cmd.Flags().StringVar(&req.ExpectedPrefix, "prefix", "", "Prefix the caller may write under")
	cmd.Flags().StringVar(&req.Bucket, "bucket", "", "Target bucket")
	_ = cmd.MarkFlagRequired("use-case")
	_ = cmd.MarkFlagRequired("mime")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("prefix")
	return cmd
}
