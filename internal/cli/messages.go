package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/messaging"
)

// MessagesOptions holds flags for the messages and documents commands.
type MessagesOptions struct {
	*RootOptions
	Document string // JSON object
	Page     int
	PageSize int
}

// MessageList is the output of the messages commands.
type MessageList struct {
	RunID    string              `json:"run_id"`
	Messages []messaging.Message `json:"messages"`
}

func (l MessageList) String() string {
	if len(l.Messages) == 0 {
		return "No messages."
	}
	lines := make([]string, len(l.Messages))
	for i, m := range l.Messages {
		lines[i] = fmt.Sprintf("%s %s %s %s", m.CreateDate, m.TopicID, m.MessageID, m.Hash)
	}
	return strings.Join(lines, "\n")
}

// DocumentPage is the output of documents list.
type DocumentPage struct {
	RunID     string       `json:"run_id"`
	Kind      string       `json:"kind"`
	Total     int          `json:"total"`
	Documents []doc.Object `json:"documents"`
}

func (p DocumentPage) String() string {
	return fmt.Sprintf("%s of %d %s\n%s", plural(len(p.Documents), "document"), p.Total, p.Kind,
		ListResult{Records: p.Documents}.String())
}

// NewMessagesCommand creates the messages command group.
func NewMessagesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MessagesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Inspect the virtual messages and documents of a run",
	}

	list := &cobra.Command{
		Use:   "list <run-id> <topic-id>",
		Short: "List the messages recorded for a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, topic := args[0], args[1]
			if err := requireRunID(runID); err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				msgs, err := a.messaging.ListMessages(cmd.Context(), dryrun.NewRun(runID), topic)
				if err != nil {
					return f.Fail("list messages failed", err)
				}
				return f.Success(MessageList{RunID: runID, Messages: msgs})
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <run-id> <message-id>",
		Short: "Show one message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, messageID := args[0], args[1]
			if err := requireRunID(runID); err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				m, ok, err := a.messaging.GetMessage(cmd.Context(), dryrun.NewRun(runID), messageID)
				if err != nil {
					return f.Fail("get message failed", err)
				}
				if !ok {
					_ = f.Error("E_NOT_FOUND", fmt.Sprintf("message %s not found", messageID), nil)
					return NewExitError(ExitFailure, fmt.Sprintf("message %s not found", messageID))
				}
				return f.Success(MessageList{RunID: runID, Messages: []messaging.Message{m}})
			})
		},
	}

	record := &cobra.Command{
		Use:   "record <run-id> <topic-id> <message-id>",
		Short: "Record a message in place of submitting it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, topic, messageID := args[0], args[1], args[2]
			if err := requireRunID(runID); err != nil {
				return err
			}
			document, err := doc.ParseObject([]byte(opts.Document))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --document", err)
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				m, err := a.messaging.RecordMessage(cmd.Context(), dryrun.NewRun(runID), topic, messageID, document)
				if err != nil {
					return f.Fail("record message failed", err)
				}
				return f.Success(MessageList{RunID: runID, Messages: []messaging.Message{m}})
			})
		},
	}
	record.Flags().StringVar(&opts.Document, "document", "{}", "message document as a JSON object")

	documents := &cobra.Command{
		Use:   "documents <run-id> <artifacts|transactions|ipfs>",
		Short: "List the virtual documents of a run",
		Long: `List one page of the virtual documents of a run.

A positive --page-size returns the newest documents first; without it
every document is returned in insertion order.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			if err := requireRunID(runID); err != nil {
				return err
			}
			kind, err := messaging.ParseDocumentKind(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid document kind", err)
			}
			if opts.Page < 0 || opts.PageSize < 0 {
				return NewExitError(ExitCommandError, "--page and --page-size must be non-negative")
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				docs, total, err := a.messaging.ListDocuments(cmd.Context(), dryrun.NewRun(runID), kind,
					messaging.Page{Index: opts.Page, Size: opts.PageSize})
				if err != nil {
					return f.Fail("list documents failed", err)
				}
				return f.Success(DocumentPage{RunID: runID, Kind: string(kind), Total: total, Documents: docs})
			})
		},
	}
	documents.Flags().IntVar(&opts.Page, "page", 0, "page index")
	documents.Flags().IntVar(&opts.PageSize, "page-size", 0, "page size (0 = everything)")

	cmd.AddCommand(list, get, record, documents)
	return cmd
}
