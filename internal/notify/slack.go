// Package notify posts batch outcomes to Slack.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"github.com/jonathan/compliance-reviewer/internal/types"
)

// maxFailuresListed bounds the failure lines in one message.
const maxFailuresListed = 10

// Summary describes one finished batch.
type Summary struct {
	RunID        string
	Applications int
	Failed       int
	// Aggregate is nil when no application had a manual review to compare against.
	Aggregate  *types.AggregateStats
	Failures   []string
	ReportKeys []string
}

// Notifier delivers batch summaries.
type Notifier interface {
	PostBatchSummary(ctx context.Context, s Summary) error
}

// SlackNotifier posts summaries to one channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlackNotifier creates a notifier. Options are passed to slack.New, e.g. slack.OptionAPIURL in tests.
func NewSlackNotifier(token, channel string, opts ...slack.Option) (*SlackNotifier, error) {
	if token == "" || channel == "" {
		return nil, fmt.Errorf("slack notifier needs both a token and a channel")
	}
	return &SlackNotifier{api: slack.New(token, opts...), channel: channel}, nil
}

// PostBatchSummary posts the summary as a header plus markdown sections.
func (n *SlackNotifier) PostBatchSummary(ctx context.Context, s Summary) error {
	_, ts, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionBlocks(Blocks(s)...),
		slack.MsgOptionText(Headline(s), false),
	)
	if err != nil {
		return fmt.Errorf("failed to post batch summary: %w", err)
	}
	log.Printf("[NOTIFY] Posted batch summary %s to %s (ts %s)", s.RunID, n.channel, ts)
	return nil
}

// Headline is the one-line fallback text for clients that do not render blocks.
func Headline(s Summary) string {
	ok := s.Applications - s.Failed
	return fmt.Sprintf("Compliance batch %s: %d of %d applications validated", s.RunID, ok, s.Applications)
}

// Blocks renders the summary as Slack blocks.
func Blocks(s Summary) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, Headline(s), false, false)),
	}

	if s.Aggregate != nil {
		a := s.Aggregate
		text := fmt.Sprintf("*Agreement with manual review* (%d applications)\n"+
			"Mean success rate: *%.1f%%*\nPooled success rate: *%.1f%%* (%d of %d verdicts)\n"+
			"Mismatching: %d  Missing in manual: %d  Missing in AI: %d",
			a.Applications, a.MeanSuccessRatePercent, a.PooledSuccessRatePercent, a.Matching, a.Total,
			a.Mismatching, a.MissingInManual, a.MissingInAI)
		blocks = append(blocks, section(text))
	}

	if len(s.Failures) > 0 {
		var sb strings.Builder
		sb.WriteString("*Failed applications*\n")
		count := min(len(s.Failures), maxFailuresListed)
		for _, f := range s.Failures[:count] {
			sb.WriteString("• " + f + "\n")
		}
		if len(s.Failures) > maxFailuresListed {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(s.Failures)-maxFailuresListed))
		}
		blocks = append(blocks, section(strings.TrimSuffix(sb.String(), "\n")))
	}

	if len(s.ReportKeys) > 0 {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "Reports: `"+strings.Join(s.ReportKeys, "`, `")+"`", false, false)))
	}
	return blocks
}

func section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}
