package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/apiclient"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/schema"
	"github.com/joseph-ayodele/docflow/internal/state"
)

func runSchema(ctx context.Context, cfg *common.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return common.InputError("schema: expected get, set, add, delete or reset")
	}
	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, logger)
	if err != nil {
		return err
	}
	svc := schema.NewService(client, &state.SchemaCache{}, logger)

	var result entity.Schema
	switch args[0] {
	case "get":
		result, err = svc.Get(ctx)
	case "reset":
		result, err = svc.Reset(ctx)
	case "set":
		fs := flag.NewFlagSet("schema set", flag.ContinueOnError)
		file := fs.String("file", "", "JSON schema definition file (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *file == "" {
			return common.InputError("-file is required")
		}
		raw, readErr := os.ReadFile(*file)
		if readErr != nil {
			return common.NewAppError("INVALID_INPUT", "read schema file", readErr)
		}
		result, err = svc.SetDefinition(ctx, raw)
	case "add":
		fs := flag.NewFlagSet("schema add", flag.ContinueOnError)
		var (
			name        = fs.String("name", "", "field name (required)")
			typ         = fs.String("type", string(constants.FieldString), "field type: string|date|number|boolean")
			required    = fs.Bool("required", false, "mark the field required")
			nullable    = fs.Bool("nullable", true, "allow null values")
			description = fs.String("description", "", "field description")
			format      = fs.String("format", "", "date format, date fields only")
		)
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		ft, ok := constants.CanonicalizeFieldType(*typ)
		if !ok {
			return common.InputError(fmt.Sprintf("unknown field type %q", *typ))
		}
		result, err = svc.AddField(ctx, entity.FieldSpec{
			Name:        *name,
			Type:        ft,
			Required:    *required,
			Nullable:    *nullable,
			Description: *description,
			Format:      *format,
		})
	case "delete":
		fs := flag.NewFlagSet("schema delete", flag.ContinueOnError)
		name := fs.String("name", "", "field name (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		result, err = svc.DeleteField(ctx, *name)
	default:
		return common.InputError(fmt.Sprintf("schema: unknown subcommand %q", args[0]))
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
