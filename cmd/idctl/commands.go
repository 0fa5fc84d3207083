package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"salonid/internal/domain/auth"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the identifier tables and indexes if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, true)
			if err != nil {
				return err
			}
			if a.Repo == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "in-memory store: nothing to migrate")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func (c *cli) generateCmd() *cobra.Command {
	var (
		scope string
		meta  map[string]string
	)
	cmd := &cobra.Command{
		Use:     "generate <entity>",
		Short:   "Issue one identifier",
		Example: "  idctl generate cliente\n  idctl generate cita --scope sede-1 --meta origin=import",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			id, err := a.Service.Generate(cmd.Context(), args[0], optional(cmd, "scope", scope), metadata(meta))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "namespace (branch, region); empty means global")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata key=value pairs")
	return cmd
}

func (c *cli) batchCmd() *cobra.Command {
	var (
		scope string
		meta  map[string]string
	)
	cmd := &cobra.Command{
		Use:   "batch <entity> <count>",
		Short: "Issue up to count identifiers from one sequence key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("count must be an integer: %w", err)
			}
			a, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			ids, err := a.Service.GenerateBatch(cmd.Context(), args[0], optional(cmd, "scope", scope), count, metadata(meta))
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			if len(ids) < count {
				cmd.PrintErrf("issued %d of %d (collisions dropped)\n", len(ids), count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "namespace (branch, region); empty means global")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata key=value pairs")
	return cmd
}

func (c *cli) validateCmd() *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Check that an identifier was issued (for an entity type)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			ok, err := a.Service.Validate(cmd.Context(), args[0], optional(cmd, "entity", entity))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not a valid identifier", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "require the identifier to belong to this entity type")
	return cmd
}

func (c *cli) lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <id>",
		Short: "Print the registry record of an identifier as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			rec, err := a.Service.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func (c *cli) entitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List entity types and their prefixes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			prefixes := a.Service.PrefixTable()
			tbl := newTable(cmd, "ENTITY", "PREFIX")
			for _, entity := range a.Service.Entities() {
				tbl.AddRow(entity, prefixes[entity])
			}
			tbl.Print()
			return nil
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	var entity, scope string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show issued counts and sequence capacity usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			report, err := a.Service.Stats(cmd.Context(), optional(cmd, "entity", entity), optional(cmd, "scope", scope))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Total issued: %d\n", report.TotalIssued)
			if report.LastIssuedAt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Last issued:  %s\n", report.LastIssuedAt.Format(time.RFC3339))
			}
			fmt.Fprintln(cmd.OutOrStdout())

			entities := newTable(cmd, "ENTITY", "ISSUED", "LAST ISSUED")
			for _, name := range sortedKeys(report.PerEntity) {
				ec := report.PerEntity[name]
				entities.AddRow(name, ec.Count, ec.LastIssuedAt.Format(time.RFC3339))
			}
			entities.Print()
			fmt.Fprintln(cmd.OutOrStdout())

			sequences := newTable(cmd, "KEY", "GENERATED", "CAPACITY", "AVAILABLE", "USED %", "LAST USED")
			for _, u := range report.Sequences {
				sequences.AddRow(u.Key, u.Generated, u.Capacity, u.Available, u.PercentUsed.StringFixed(2), u.LastUsedAt.Format(time.RFC3339))
			}
			sequences.Print()
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "only this entity type")
	cmd.Flags().StringVar(&scope, "scope", "", "only this scope (\"\" selects global)")
	return cmd
}

func (c *cli) resetCmd() *cobra.Command {
	var (
		scope string
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "reset <prefix> <digits>",
		Short: "Reset a sequence counter and release its claims",
		Long: `Reset sets the counter of one sequence key back to zero and releases its
claims. Issued identifiers stay registered, so numbers already handed out are
never reissued.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			digits, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("digits must be an integer: %w", err)
			}
			if !yes {
				return fmt.Errorf("refusing to reset %s-%d without --yes", args[0], digits)
			}
			a, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			if err := a.Service.ResetSequence(cmd.Context(), strings.ToUpper(args[0]), digits, optional(cmd, "scope", scope)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sequence %s-%d reset\n", strings.ToUpper(args[0]), digits)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope of the sequence key")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func (c *cli) selfcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Issue probe identifiers and verify uniqueness and dispersion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			report, err := a.Service.SelfCheck(cmd.Context())
			if err != nil {
				return err
			}
			tbl := newTable(cmd, "CHECK", "RESULT")
			tbl.AddRow("ids", strings.Join(report.IDs, " "))
			tbl.AddRow("unique", report.Unique)
			tbl.AddRow("non-sequential", report.NonSequential)
			tbl.AddRow("registered", report.Valid)
			tbl.Print()
			if !report.OK() {
				return fmt.Errorf("self-check failed")
			}
			return nil
		},
	}
}

func (c *cli) purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired claims once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			n, err := a.Service.PurgeExpiredClaims(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired claims\n", n)
			return nil
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		user  string
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))
			token, expiresAt, err := jwtService.GenerateAccessToken(user, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			cmd.PrintErrf("expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "idctl", "subject of the token")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleAdmin}, "roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

// optional returns nil unless the flag was set, so "--scope ''" still
// selects the global namespace explicitly.
func optional(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func metadata(kv map[string]string) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	out := make(map[string]any, len(kv))
	for k, v := range kv {
		out[k] = v
	}
	return out
}

func newTable(cmd *cobra.Command, headers ...any) table.Table {
	return table.New(headers...).WithWriter(cmd.OutOrStdout()).WithPadding(2)
}

func sortedKeys[M ~map[K]V, K cmp.Ordered, V any](m M) []K {
	return slices.Sorted(maps.Keys(m))
}
