package boardwatch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PipelineConfig holds the knobs for one run.
type PipelineConfig struct {
	Boards []Board
	// PostsPerRun caps how many new posts each board processes per run,
	// bounding notification volume and run duration. Default 5.
	PostsPerRun int
	// PostDelay is the politeness delay between post-processing
	// iterations. Default 2s.
	PostDelay time.Duration
	// RequireAuth enables the fatal auth check at run start. Leave false
	// for boards readable without a session.
	RequireAuth bool
	// Credentials for the re-login attempt when the auth check fails.
	Credentials Credentials
	// RecordGated records gated posts in the ledger instead of retrying
	// them on future runs.
	RecordGated bool
	// Heartbeat, when set, is sent as a text message at run start.
	Heartbeat string
	// MediaDir is where the run-scoped media temp directory is created.
	// Empty means the system temp directory.
	MediaDir string
}

// Pipeline orchestrates one complete run: load ledger, list each board,
// extract and deliver each new post, record processed keys. Runs are
// sequential by design: one board at a time, one post at a time, to stay
// polite to the source and keep session state race-free.
type Pipeline struct {
	session   *Session
	listing   *ListingFetcher
	extractor *Extractor
	notifier  Notifier
	ledger    *Ledger
	config    PipelineConfig
}

// NewPipeline wires the pipeline components together.
func NewPipeline(session *Session, listing *ListingFetcher, extractor *Extractor, notifier Notifier, ledger *Ledger, config PipelineConfig) *Pipeline {
	if config.PostsPerRun <= 0 {
		config.PostsPerRun = 5
	}
	if config.PostDelay <= 0 {
		config.PostDelay = 2 * time.Second
	}

	return &Pipeline{
		session:   session,
		listing:   listing,
		extractor: extractor,
		notifier:  notifier,
		ledger:    ledger,
		config:    config,
	}
}

// Run executes one complete pass and returns its report. The returned error
// is non-nil only for the fatal class: an authentication failure after one
// re-login attempt. Everything else is contained at the board or post
// boundary and reflected in the report.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}

	if p.config.Heartbeat != "" {
		if err := p.notifier.SendText(ctx, p.config.Heartbeat); err != nil {
			log.Printf("ERROR: Heartbeat send failed: %v", err)
		}
	}

	if p.config.RequireAuth {
		if err := p.ensureAuthenticated(ctx); err != nil {
			report.FatalError = err.Error()
			report.FinishedAt = time.Now()
			if sendErr := p.notifier.SendText(ctx, "❌ Run aborted: "+err.Error()); sendErr != nil {
				log.Printf("ERROR: Failed to send fatal error notification: %v", sendErr)
			}
			return report, err
		}
	}

	seen := p.ledger.Load()
	log.Printf("INFO: Loaded %d seen keys from ledger", len(seen))

	materializer, err := NewMaterializer(p.config.MediaDir)
	if err != nil {
		// Degrade to text-only delivery rather than abort the run.
		log.Printf("ERROR: Failed to create media directory: %v", err)
		materializer = nil
	}
	if materializer != nil {
		defer materializer.Cleanup()
	}

	for _, board := range p.config.Boards {
		report.Boards = append(report.Boards, p.processBoard(ctx, board, seen, materializer))
	}

	report.FinishedAt = time.Now()
	log.Printf("INFO: %s", report.Summary())
	return report, nil
}

// ensureAuthenticated verifies the session against the base URL and retries
// login once. Nothing downstream can succeed without a session, so this is
// the one path allowed to abort the run.
func (p *Pipeline) ensureAuthenticated(ctx context.Context) error {
	if p.session.Authenticated(ctx) {
		return nil
	}

	log.Printf("INFO: Session not authenticated, attempting login")
	if err := p.session.Login(ctx, p.config.Credentials); err != nil {
		return fmt.Errorf("authentication failed after retry: %w", err)
	}
	return nil
}

// processBoard runs the listing-filter-process loop for one board. A board
// failure never reaches its siblings.
func (p *Pipeline) processBoard(ctx context.Context, board Board, seen map[string]struct{}, materializer *Materializer) BoardReport {
	boardReport := BoardReport{Board: board.Name}

	candidates, err := p.listBoard(ctx, board)
	if err != nil {
		log.Printf("ERROR: Listing failed for board %s: %v", board.Name, err)
		boardReport.Error = err.Error()
		return boardReport
	}

	fresh := make([]PostCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate.SeenKey()]; !ok {
			fresh = append(fresh, candidate)
		}
	}
	if len(fresh) > p.config.PostsPerRun {
		fresh = fresh[:p.config.PostsPerRun]
	}
	boardReport.Found = len(fresh)
	log.Printf("INFO: Board %s: %d candidates, %d new", board.Name, len(candidates), len(fresh))

	for i, candidate := range fresh {
		if i > 0 {
			if !p.politePause(ctx) {
				break
			}
		}
		if p.processPost(ctx, candidate, seen, materializer) {
			boardReport.Delivered++
		} else {
			boardReport.Skipped++
		}
	}

	return boardReport
}

// listBoard picks the feed or HTML listing path per board configuration.
func (p *Pipeline) listBoard(ctx context.Context, board Board) ([]PostCandidate, error) {
	if board.Feed != "" {
		return p.listing.ListFeed(ctx, board)
	}
	return p.listing.ListBoard(ctx, p.session, board)
}

// processPost runs extract → materialize → deliver → record for one
// candidate and reports whether a delivery was attempted. Skips never write
// the ledger (unless RecordGated applies), so a transiently gated post gets
// retried on a later run.
func (p *Pipeline) processPost(ctx context.Context, candidate PostCandidate, seen map[string]struct{}, materializer *Materializer) bool {
	log.Printf("INFO: Processing post %s (%s)", candidate.ID, candidate.Title)

	content, err := p.extractor.Extract(ctx, p.session, candidate)
	if err != nil {
		switch {
		case errors.Is(err, ErrGated):
			log.Printf("INFO: Skipping gated post %s: %v", candidate.ID, err)
			if p.config.RecordGated {
				p.record(candidate, seen)
			}
		case errors.Is(err, ErrWeakContent):
			log.Printf("INFO: Skipping weak post %s", candidate.ID)
		default:
			log.Printf("ERROR: Extraction failed for post %s: %v", candidate.ID, err)
		}
		return false
	}

	var media []MaterializedMedia
	if materializer != nil && len(content.Media) > 0 {
		media = materializer.Materialize(ctx, p.session, content.Media, content.ID)
	}

	caption := buildCaption(content)
	if err := p.notifier.Send(ctx, caption, media); err != nil {
		log.Printf("ERROR: Delivery failed for post %s: %v", candidate.ID, err)
	}
	if materializer != nil {
		materializer.ReleaseAll(media)
	}

	if len(content.Embeds) > 0 {
		if err := p.notifier.SendText(ctx, embedMessage(content.Embeds)); err != nil {
			log.Printf("ERROR: Embed link send failed for post %s: %v", candidate.ID, err)
		}
	}

	// Record after the attempt, regardless of the attempt's outcome. A
	// totally failed delivery may be lost, but the post can never spam the
	// channel on every subsequent run.
	p.record(candidate, seen)
	return true
}

// record appends the candidate's key to the ledger and the in-memory set. A
// write failure is logged, never escalated: a duplicate notification next
// run beats crashing now.
func (p *Pipeline) record(candidate PostCandidate, seen map[string]struct{}) {
	key := candidate.SeenKey()
	seen[key] = struct{}{}
	if err := p.ledger.Append([]string{key}); err != nil {
		log.Printf("ERROR: Ledger append failed for %s: %v", candidate.ID, err)
	}
}

// politePause sleeps the configured delay, returning false if the context
// was cancelled while waiting.
func (p *Pipeline) politePause(ctx context.Context) bool {
	timer := time.NewTimer(p.config.PostDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// buildCaption renders the notification text: bold title, bounded summary,
// and the post URL, HTML-escaped for Telegram's HTML parse mode.
func buildCaption(content *PostContent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>", html.EscapeString(content.Title))
	if content.Summary != "" {
		sb.WriteString("\n")
		sb.WriteString(html.EscapeString(content.Summary))
	}
	sb.WriteString("\n")
	sb.WriteString(content.ID)

	// Telegram caps captions at 1024 characters.
	caption := sb.String()
	if runes := []rune(caption); len(runes) > 1000 {
		caption = string(runes[:997]) + "…"
	}
	return caption
}

// embedMessage formats allowlisted embed links as a follow-up text message.
func embedMessage(embeds []string) string {
	if len(embeds) > 5 {
		embeds = embeds[:5]
	}
	return "🎬 Embedded video links:\n" + strings.Join(embeds, "\n")
}
