/*
Package cli provides command-line utilities shared by the admission command.

Output Formatting:

Results can be rendered as text, JSON or CSV. CSV requires the result to
implement Table:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Errors:

ConfigError and CommandError carry the failing path or command; ExitCode maps
them to process exit codes.
*/
package cli
