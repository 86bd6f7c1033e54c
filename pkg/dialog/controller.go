package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/email"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
	"github.com/chriscow/livekit-postop-sub000/pkg/rag"
)

// State is the controller's dialog phase.
type State string

// Dialog states. The controller never returns to StatePassive once
// StateSummary has begun.
const (
	StateIntro        State = "intro"
	StatePassive      State = "passive"
	StateSummary      State = "summary"
	StateEmailConfirm State = "email_confirm"
	StateTerminal     State = "terminal"
)

// DefaultSilenceTimeout exits passive listening after sustained user
// inactivity.
const DefaultSilenceTimeout = 30 * time.Second

// defaultLanguage is the read-back language when nothing better is known.
const defaultLanguage = "English"

var confirmationPhrases = []string{
	"that's correct",
	"that is correct",
	"that's right",
	"yes, that's right",
	"looks good",
	"sounds good",
	"correct",
}

// bare confirmations match the whole (trimmed, unpunctuated) turn only.
var bareConfirmations = []string{"yes", "yep", "yeah"}

// Config carries the per-call dialog parameters.
type Config struct {
	// AgentName is the spoken name patients use to address the agent.
	AgentName string

	Patient models.Patient

	// EmailTo receives the verified summary. Empty disables the email
	// confirmation step; the dialog closes right after the summary.
	EmailTo string

	SilenceTimeout time.Duration
}

// Controller drives one call's dialog. Turns are processed one at a
// time; all methods are safe to call from the transcriber event
// goroutine and the silence timer.
type Controller struct {
	mu         sync.Mutex
	cfg        Config
	gate       *Gate
	classifier Classifier
	sender     email.Sender
	knowledge  *rag.Index
	detector   *Detector

	state        State
	instructions []models.DischargeInstruction
	seen         map[string]struct{}
	inferredLang string
	silence      *time.Timer
}

// New creates a dialog controller. sender and knowledge may be nil; the
// email step and question answering are then skipped.
func New(gate *Gate, classifier Classifier, sender email.Sender, knowledge *rag.Index, cfg Config) *Controller {
	if cfg.AgentName == "" {
		cfg.AgentName = "Maya"
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultSilenceTimeout
	}
	return &Controller{
		cfg:        cfg,
		gate:       gate,
		classifier: classifier,
		sender:     sender,
		knowledge:  knowledge,
		detector:   NewDetector(cfg.AgentName),
		state:      StateIntro,
		seen:       make(map[string]struct{}),
	}
}

// State returns the current dialog state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PassiveMode reports whether the controller is silently listening.
func (c *Controller) PassiveMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatePassive
}

// Instructions returns the collected instructions in capture order.
func (c *Controller) Instructions() []models.DischargeInstruction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.DischargeInstruction, len(c.instructions))
	copy(out, c.instructions)
	return out
}

// Start greets the room and begins passive listening.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIntro {
		return fmt.Errorf("dialog already started (state %s)", c.state)
	}

	greeting := fmt.Sprintf(
		"Hi, I'm %s, the discharge assistant for %s. Who's in the room with us today? "+
			"I'll listen quietly while you go over the discharge instructions.",
		c.cfg.AgentName, c.cfg.Patient.Name)
	if err := c.gate.Say(ctx, greeting); err != nil {
		return err
	}
	c.startPassiveLocked()
	return nil
}

// StartPassiveListening is the tool-call entry point: it mutes TTS and
// begins collecting.
func (c *Controller) StartPassiveListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIntro {
		c.startPassiveLocked()
	}
}

func (c *Controller) startPassiveLocked() {
	c.state = StatePassive
	c.gate.SetMuted(true)
	c.resetSilenceLocked()
	slog.Info("Passive listening started", "patient_id", c.cfg.Patient.ID)
}

// CollectInstruction records an instruction, dropping case- and
// trailing-punctuation-insensitive duplicates. Returns whether the
// instruction was new.
func (c *Controller) CollectInstruction(text string, category models.InstructionCategory) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collectLocked(text, category)
}

func (c *Controller) collectLocked(text string, category models.InstructionCategory) bool {
	key := models.NormalizeInstructionText(text)
	if key == "" {
		return false
	}
	if _, dup := c.seen[key]; dup {
		slog.Debug("Dropped duplicate instruction", "text", text)
		return false
	}
	c.seen[key] = struct{}{}
	c.instructions = append(c.instructions, models.DischargeInstruction{
		Text:       strings.TrimSpace(text),
		Category:   category,
		CapturedAt: time.Now().UTC(),
	})
	slog.Info("Instruction collected", "category", category, "count", len(c.instructions))
	return true
}

// HandleUserTurn processes one completed user turn from the transcriber.
func (c *Controller) HandleUserTurn(ctx context.Context, text, language string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if language != "" && c.inferredLang == "" {
		c.inferredLang = language
	}

	switch c.state {
	case StatePassive:
		return c.passiveTurnLocked(ctx, text)
	case StateEmailConfirm:
		return c.confirmTurnLocked(ctx, text)
	default:
		return nil
	}
}

// passiveTurnLocked classifies and collects, then checks exit signals.
// The first matching signal wins and ends passive listening for good.
func (c *Controller) passiveTurnLocked(ctx context.Context, text string) error {
	c.resetSilenceLocked()

	if cls := c.classifier.Classify(ctx, text); cls.IsInstruction {
		c.collectLocked(text, cls.Category)
	}

	if sig := c.detector.Detect(text, len(c.instructions)); sig != SignalNone {
		return c.exitPassiveLocked(ctx, sig)
	}
	return nil
}

// exitPassiveLocked re-enables TTS, speaks the summary, and moves on to
// email confirmation.
func (c *Controller) exitPassiveLocked(ctx context.Context, signal ExitSignal) error {
	c.stopSilenceLocked()
	c.state = StateSummary
	c.gate.SetMuted(false)
	slog.Info("Passive listening ended",
		"signal", signal, "instructions", len(c.instructions))

	if err := c.gate.Say(ctx, BuildSummary(c.instructions)); err != nil {
		return err
	}
	if lang := c.patientLanguageLocked(); !strings.EqualFold(lang, defaultLanguage) {
		if err := c.gate.Say(ctx, fmt.Sprintf("Would you like me to repeat that in %s?", lang)); err != nil {
			return err
		}
	}

	if c.sender == nil || c.cfg.EmailTo == "" || len(c.instructions) == 0 {
		c.state = StateTerminal
		return c.gate.Say(ctx, "Thank you, and I hope the recovery goes smoothly.")
	}
	c.state = StateEmailConfirm
	return c.gate.Say(ctx, "Did I get everything right? If so, I'll email this summary to you.")
}

// confirmTurnLocked waits for an explicit confirmation; questions are
// answered from the knowledge index in the meantime.
func (c *Controller) confirmTurnLocked(ctx context.Context, text string) error {
	if isConfirmation(text) {
		subject, plain, htmlBody := summaryEmail(c.cfg.Patient, c.instructions)
		err := c.sender.SendSummary(ctx, email.SummaryEmail{
			To:        c.cfg.EmailTo,
			Subject:   subject,
			BodyPlain: plain,
			BodyHTML:  htmlBody,
		})
		c.state = StateTerminal
		if err != nil {
			slog.Error("Failed to send summary email", "to", c.cfg.EmailTo, "error", err)
			return c.gate.Say(ctx, "I couldn't send the email just now, but your summary has been recorded.")
		}
		slog.Info("Summary email sent", "to", c.cfg.EmailTo, "instructions", len(c.instructions))
		return c.gate.Say(ctx, "Great, I've emailed the summary. Take care.")
	}

	if strings.HasSuffix(strings.TrimSpace(text), "?") && c.knowledge != nil {
		return c.answerQuestionLocked(ctx, text)
	}
	return nil
}

// answerQuestionLocked looks the question up in the medical knowledge
// index and reads the best match back.
func (c *Controller) answerQuestionLocked(ctx context.Context, question string) error {
	results, err := c.knowledge.Search(ctx, question, 1, 0.3)
	if err != nil {
		slog.Warn("Knowledge lookup failed", "error", err)
		return nil
	}
	if len(results) == 0 {
		return c.gate.Say(ctx, "That's a good question for your care team; I don't want to guess.")
	}
	return c.gate.Say(ctx, results[0].Content)
}

// patientLanguageLocked resolves the read-back language: the explicit
// patient setting wins, then the language inferred from transcriber
// events, then English.
func (c *Controller) patientLanguageLocked() string {
	if c.cfg.Patient.Language != "" {
		return c.cfg.Patient.Language
	}
	if c.inferredLang != "" {
		return c.inferredLang
	}
	return defaultLanguage
}

// Silence timer: fires the exit if the user has been inactive while
// passive.

func (c *Controller) resetSilenceLocked() {
	c.stopSilenceLocked()
	c.silence = time.AfterFunc(c.cfg.SilenceTimeout, c.onSilence)
}

func (c *Controller) stopSilenceLocked() {
	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
}

func (c *Controller) onSilence() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePassive {
		return
	}
	slog.Info("Silence timeout reached, exiting passive listening",
		"timeout", c.cfg.SilenceTimeout)
	if err := c.exitPassiveLocked(context.Background(), SignalSilence); err != nil {
		slog.Error("Failed to exit passive listening on silence", "error", err)
	}
}

// Close stops the silence timer. Call when the session ends.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopSilenceLocked()
	c.state = StateTerminal
}

// isConfirmation reports whether the turn explicitly confirms the
// summary.
func isConfirmation(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	lower = strings.TrimRight(lower, ".!?, ")
	if containsAny(lower, []string{"incorrect", "not correct", "not right", "that's wrong"}) {
		return false
	}
	for _, p := range bareConfirmations {
		if lower == p {
			return true
		}
	}
	return containsAny(lower, confirmationPhrases)
}
