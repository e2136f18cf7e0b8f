package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alb1nut/homebase/internal/config"
	"github.com/alb1nut/homebase/internal/email"
	"github.com/alb1nut/homebase/internal/services"
	"github.com/alb1nut/homebase/internal/utils"
)

// TaskType defines the type of a background task.
const (
	TypeEmailDelivery     = "email:deliver"
	TypeAgentStatsRefresh = "agent:stats:refresh"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}
	return asynq.NewClient(clientOpt)
}

// EmailTaskPayload carries the data for an email delivery task.
// ContactID, when set, marks the originating agent contact as sent after delivery.
type EmailTaskPayload struct {
	To         string                 `json:"to"`
	TemplateID string                 `json:"template_id"`
	Locale     string                 `json:"locale,omitempty"`
	ContactID  string                 `json:"contact_id,omitempty"`
	Data       map[string]interface{} `json:"data"`
}

// NewEmailDeliveryTask builds an email delivery task for enqueuing.
func NewEmailDeliveryTask(payload EmailTaskPayload) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal email task payload: %w", err)
	}
	return asynq.NewTask(TypeEmailDelivery, payloadBytes), nil
}

// AgentStatsRefreshPayload identifies the agent whose denormalized stats need recomputing.
type AgentStatsRefreshPayload struct {
	AgentID string `json:"agent_id"`
}

// NewAgentStatsRefreshTask builds a stats refresh task for enqueuing.
func NewAgentStatsRefreshTask(agentID utils.SixID) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(AgentStatsRefreshPayload{AgentID: agentID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stats refresh payload: %w", err)
	}
	return asynq.NewTask(TypeAgentStatsRefresh, payloadBytes), nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg                  *config.Config
	emailSender          email.Sender
	agentService         services.IAgentService
	configService        services.IConfigService
	userService          services.IUserService
	emailTemplateService services.IEmailTemplateService
	taskClient           *asynq.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	agentService services.IAgentService,
	configService services.IConfigService,
	userService services.IUserService,
	emailTemplateService services.IEmailTemplateService,
	taskClient *asynq.Client,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:                  cfg,
		emailSender:          emailSender,
		agentService:         agentService,
		configService:        configService,
		userService:          userService,
		emailTemplateService: emailTemplateService,
		taskClient:           taskClient,
	}
}

// SetupServer configures an Asynq server and its handler mux.
// The caller is responsible for running the returned server.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isBgWorker bool) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	if !isBgWorker {
		// API mode doesn't run a task server, but can still enqueue tasks
		fmt.Println("Running in API mode, no task server started.")
		return nil, nil
	}

	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeAgentStatsRefresh, processor.HandleAgentStatsRefreshTask)
	fmt.Println("Registered background task handlers (email delivery & agent stats).")

	return srv, mux
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	fmt.Printf("Sending email task: To=%s, Template=%s\n", payload.To, payload.TemplateID)

	locale := payload.Locale
	if locale == "" {
		locale = "en-US"
	}

	tmpl, err := p.emailTemplateService.GetTemplate(ctx, payload.TemplateID, locale)
	if err != nil {
		log.Printf("Error getting email template %s/%s: %v", payload.TemplateID, locale, err)
		// Non-retryable if template not found
		return fmt.Errorf("email template not found: %w", asynq.SkipRetry)
	}

	// Simple placeholder replacement (replace {{.key}})
	subjectRendered := tmpl.Subject
	bodyRendered := tmpl.Body
	for key, val := range payload.Data {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		valueStr := fmt.Sprintf("%v", val)
		subjectRendered = strings.ReplaceAll(subjectRendered, placeholder, valueStr)
		bodyRendered = strings.ReplaceAll(bodyRendered, placeholder, valueStr)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, payload.To)
	}

	// Basic email structure with essential headers.
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", payload.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subjectRendered))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(bodyRendered)
	sb.WriteString("\r\n")

	rawMessage := []byte(sb.String())

	err = p.emailSender.Send(ctx, []string{payload.To}, subjectRendered, rawMessage)
	if err != nil {
		fmt.Printf("Email sending failed (will retry): %v\n", err)
		return err
	}

	if payload.ContactID != "" {
		contactID, err := utils.ParseSixID(payload.ContactID)
		if err != nil {
			log.Printf("Invalid ContactID in email task payload: %s", payload.ContactID)
		} else if err := p.agentService.MarkContactSent(ctx, contactID); err != nil {
			// Email went out; a stale Sent flag is not worth a redelivery
			log.Printf("WARN: failed to mark contact %s as sent: %v", payload.ContactID, err)
		}
	}

	fmt.Printf("Email task processed successfully: To=%s, Template=%s\n", payload.To, payload.TemplateID)
	return nil
}

// HandleAgentStatsRefreshTask recomputes an agent's denormalized rating,
// review count and property count from the source collections.
func (p *TaskProcessor) HandleAgentStatsRefreshTask(ctx context.Context, t *asynq.Task) error {
	var payload AgentStatsRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal stats refresh payload: %v: %w", err, asynq.SkipRetry)
	}

	agentID, err := utils.ParseSixID(payload.AgentID)
	if err != nil {
		log.Printf("Invalid AgentID in stats refresh payload: %s", payload.AgentID)
		return fmt.Errorf("invalid agent ID in payload: %w", asynq.SkipRetry)
	}

	if err := p.agentService.RefreshAgentStats(ctx, agentID); err != nil {
		log.Printf("Error refreshing stats for agent %s: %v", payload.AgentID, err)
		return err
	}

	log.Printf("Agent stats refreshed: AgentID=%s", payload.AgentID)
	return nil
}
