package commands

import (
	"context"
	"fmt"
	"os"

	"questly/internal/models"
	"questly/internal/observability"
	"questly/internal/services"
	contextutils "questly/internal/utils"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// topicImportFile is the on-disk import format: either a bare list or a
// document with a top-level topics key.
type topicImportFile struct {
	Topics []models.Topic `yaml:"topics" json:"topics"`
}

// TopicCommands returns the topic pool management commands
func TopicCommands(topicService *services.TopicService, logger *observability.Logger) *cobra.Command {
	topicCmd := &cobra.Command{
		Use:   "topics",
		Short: "Topic pool management commands",
		Long: `Topic pool management commands for the questly backend.

Available commands:
  import     - Import topics from a YAML or JSON file
  list       - List topics in the pool
  deactivate - Remove a topic from rotation without deleting it
  activate   - Return a topic to rotation`,
	}

	topicCmd.AddCommand(importTopicsCmd(topicService, logger))
	topicCmd.AddCommand(listTopicsCmd(topicService, logger))
	topicCmd.AddCommand(setTopicActiveCmd(topicService, logger, "deactivate", false))
	topicCmd.AddCommand(setTopicActiveCmd(topicService, logger, "activate", true))

	return topicCmd
}

// importTopicsCmd returns the import command
func importTopicsCmd(topicService *services.TopicService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import topics from a file",
		Long: `Import topics from a YAML or JSON file into the pool.

Existing topics with the same id are updated in place. The file is either a
bare list of topics or a document with a top-level "topics" key.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportTopics(topicService, logger),
	}
}

// listTopicsCmd returns the list command
func listTopicsCmd(topicService *services.TopicService, logger *observability.Logger) *cobra.Command {
	var includeInactive bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List topics in the pool",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			topics, err := topicService.ListTopics(ctx, includeInactive)
			if err != nil {
				logger.Error(ctx, "Failed to list topics", err, map[string]interface{}{})
				return contextutils.WrapError(err, "failed to list topics")
			}

			if len(topics) == 0 {
				fmt.Println("No topics in the pool")
				return nil
			}

			fmt.Printf("%-30s %-14s %-8s %s\n", "ID", "Difficulty", "Active", "Title")
			for _, topic := range topics {
				fmt.Printf("%-30s %-14s %-8t %s\n", topic.ID, topic.Difficulty, topic.IsActive, topic.Title)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeInactive, "all", false, "Include topics removed from rotation")

	return cmd
}

// setTopicActiveCmd returns the activate or deactivate command
func setTopicActiveCmd(topicService *services.TopicService, logger *observability.Logger, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [topic-id]",
		Short: use + " a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			if err := topicService.SetTopicActive(ctx, args[0], active); err != nil {
				logger.Error(ctx, "Failed to update topic", err, map[string]interface{}{"topic_id": args[0]})
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to update topic %q: %v", args[0], err)
			}

			fmt.Printf("Topic %q active=%t\n", args[0], active)
			return nil
		},
	}
}

// runImportTopics returns a function that imports topics from a file
func runImportTopics(topicService *services.TopicService, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read %s: %v", args[0], err)
		}

		var doc topicImportFile
		if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Topics) == 0 {
			// Fall back to a bare list
			var topics []models.Topic
			if listErr := yaml.Unmarshal(data, &topics); listErr != nil {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to parse %s: %v", args[0], listErr)
			}
			doc.Topics = topics
		}

		if len(doc.Topics) == 0 {
			return contextutils.WrapError(contextutils.ErrInvalidInput, "no topics found in file")
		}

		imported, err := topicService.ImportTopics(ctx, doc.Topics)
		if err != nil {
			logger.Error(ctx, "Topic import failed", err, map[string]interface{}{"file": args[0]})
			return contextutils.WrapError(err, "topic import failed")
		}

		fmt.Printf("Imported %d topics from %s\n", imported, args[0])
		return nil
	}
}
