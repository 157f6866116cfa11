package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/helixml/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/api/v1/dto"
)

func createCmd(load configLoader) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a vectorizer from a YAML definition",
		Long: `Create a vectorizer from a YAML definition, for example:

  source:
    schema: public
    table: blog
  config:
    embedding:
      implementation: openai
      model: text-embedding-3-small
      dimensions: 768
    chunking:
      chunk_column: body
    scheduling:
      implementation: interval
      interval: 5m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readDefinition(file)
			if err != nil {
				return err
			}
			return withClient(load, func(ctx context.Context, client *vectorizer.Client) error {
				v, err := client.Vectorizers.Create(ctx, req.ToService())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created vectorizer %d: %s -> %s (view %s)\n",
					v.ID(), v.Source(), v.Target(), v.View())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the YAML definition")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readDefinition(path string) (dto.CreateVectorizerRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dto.CreateVectorizerRequest{}, fmt.Errorf("read definition: %w", err)
	}
	var req dto.CreateVectorizerRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return dto.CreateVectorizerRequest{}, fmt.Errorf("parse definition %s: %w", path, err)
	}
	if err := req.Validate(); err != nil {
		return dto.CreateVectorizerRequest{}, err
	}
	return req, nil
}

func dropCmd(load configLoader) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "drop ID",
		Short: "Drop a vectorizer",
		Long:  "Drop a vectorizer's trigger, queue and job. With --all the target table and view are dropped too.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(load, func(ctx context.Context, client *vectorizer.Client) error {
				if err := client.Vectorizers.Drop(ctx, id, all); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dropped vectorizer %d\n", id)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also drop the target table and view")

	return cmd
}

func enableCmd(load configLoader) *cobra.Command {
	return scheduleCmd(load, "enable", "Resume background processing of a vectorizer", true)
}

func disableCmd(load configLoader) *cobra.Command {
	return scheduleCmd(load, "disable", "Pause background processing of a vectorizer", false)
}

func scheduleCmd(load configLoader, use, short string, enable bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(load, func(ctx context.Context, client *vectorizer.Client) error {
				if enable {
					err = client.Vectorizers.EnableSchedule(ctx, id)
				} else {
					err = client.Vectorizers.DisableSchedule(ctx, id)
				}
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schedule %sd for vectorizer %d\n", use, id)
				return nil
			})
		},
	}
}

func executeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "execute ID",
		Short: "Embed one batch from a vectorizer's queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(load, func(ctx context.Context, client *vectorizer.Client) error {
				res, err := client.Vectorizers.Execute(ctx, id)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "processed %d items into %d chunks (%d tokens) in %s\n",
					res.Items, res.Chunks, res.Usage.TotalTokens(), res.Duration)
				return nil
			})
		},
	}
}

func runCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "run ID",
		Short: "Run a vectorizer's job now",
		Long:  "Fan out executor calls over the current backlog, then build the vector index if it is due.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(load, func(ctx context.Context, client *vectorizer.Client) error {
				res, err := client.Vectorizers.Run(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "backlog %d, fan-out %d: %d processed, %d failed in %s\n",
					res.Backlog, res.FanOut, res.Processed, res.Failed, res.Duration)
				if res.IndexBuilt {
					_, _ = fmt.Fprintln(out, "vector index built")
				}
				return res.Err
			})
		},
	}
}
