package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/whiterails/internal/sources/servicefile"
)

func newValidateCommand() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate service definition files",
		Long: `Validate service definition files against the embedded schema.
Exits non-zero when any file is invalid. With --yaml the normalized
definitions of the valid files are printed as YAML documents.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := servicefile.LoadSchema()
			if err != nil {
				return fmt.Errorf("embedded service schema: %w", err)
			}
			return validateFiles(cmd, servicefile.NewLoader(schema), args, asYAML)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print normalized definitions as YAML")
	return cmd
}

func validateFiles(cmd *cobra.Command, loader *servicefile.Loader, paths []string, asYAML bool) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	var enc *yaml.Encoder
	if asYAML {
		enc = yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
	}

	invalid := 0
	for _, path := range paths {
		loaded, err := loader.LoadFile(path)
		if err != nil {
			invalid++
			reportInvalid(cmd, path, err)
			continue
		}
		for _, w := range loaded.Warnings {
			fmt.Fprintf(errOut, "%s: warning: %s\n", path, w)
		}

		if enc == nil {
			fmt.Fprintf(out, "ok    %s (%s)\n", path, loaded.Definition.Name)
			continue
		}
		if err := enc.Encode(servicefile.FromDefinition(loaded.Definition)); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d files invalid", invalid, len(paths))
	}
	return nil
}

func reportInvalid(cmd *cobra.Command, path string, err error) {
	errOut := cmd.ErrOrStderr()

	var verr *servicefile.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintf(errOut, "FAIL  %s\n", path)
		for _, v := range verr.Violations {
			fmt.Fprintf(errOut, "      %s\n", v)
		}
		return
	}

	// Parse errors already carry path:line:col.
	var perr *servicefile.ParseError
	if errors.As(err, &perr) {
		fmt.Fprintf(errOut, "FAIL  %v\n", err)
		return
	}
	fmt.Fprintf(errOut, "FAIL  %s: %v\n", path, err)
}
