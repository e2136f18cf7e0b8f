package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alb1nut/homebase/internal/models"
)

const (
	testAppBinary         = "./homebase_test_app"
	testAppPort           = "8089"
	testServiceApiPortApi = "8091" // Service API run by API process
	testServiceApiPortBg  = "8092" // Service API run by BG process
	testAppURL            = "http://localhost:" + testAppPort
	testServiceApiURL     = "http://localhost:" + testServiceApiPortApi
	startupTimeout        = 15 * time.Second
	pingEndpoint          = testAppURL + "/v1/ping"
)

// TestMain manages the setup and teardown of the integration test environment.
func TestMain(m *testing.M) {
	defer func() {
		log.Println("Integration Test Teardown: Cleaning up test binary...")
		_ = os.Remove(testAppBinary)
	}()

	log.Println("Integration Test Setup: Building application...")
	godotenv.Load()
	buildCmd := exec.Command("go", "build", "-o", testAppBinary, ".")
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		log.Printf("Failed to build application: %v\nOutput:\n%s", err, string(buildOutput))
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: Build successful: %s", testAppBinary)

	seedErr := seedTestData()
	if seedErr != nil {
		log.Printf("Failed to seed test data: %v", seedErr)
		os.Exit(1)
	}
	defer cleanupTestData()

	// --- Start API Process ---
	apiCmd := exec.Command(testAppBinary, "-m", "api")
	apiCmd.Env = append(os.Environ(),
		"API_PORT="+testAppPort,
		"SERVICE_API_PORT="+testServiceApiPortApi,
		"JWT_SECRET=integration-test-secret",
		"GIN_MODE=release",
		"MOCK_SERVICES=true",
		"RATE_LIMIT_SOFT_BUCKET_SIZE=100",
		"RATE_LIMIT_SOFT_REFILL_RATE=100",
		"RATE_LIMIT_HARD_BUCKET_SIZE=200",
		"RATE_LIMIT_HARD_REFILL_RATE=200",
		"REDIS_ADDR=localhost:6379",
		"SMTP_FROM_ADDRESS=test@example.com",
	)
	apiCmd.Stderr = os.Stderr
	apiCmd.Stdout = os.Stdout

	log.Println("Integration Test Setup: Starting API process...")
	err = apiCmd.Start()
	if err != nil {
		log.Printf("Failed to start API process: %v", err)
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: API process started (PID: %d)...", apiCmd.Process.Pid)

	// --- Start Background Worker Process ---
	bgCmd := exec.Command(testAppBinary, "-m", "bg")
	bgCmd.Env = append(os.Environ(),
		"SERVICE_API_PORT="+testServiceApiPortBg,
		"JWT_SECRET=integration-test-secret",
		"GIN_MODE=release",
		"MOCK_SERVICES=true", // Essential for the Redis email sender
		"REDIS_ADDR=localhost:6379",
		"SMTP_FROM_ADDRESS=test@example.com",
	)
	bgCmd.Stderr = os.Stderr
	bgCmd.Stdout = os.Stdout

	log.Println("Integration Test Setup: Starting Background Worker process...")
	err = bgCmd.Start()
	if err != nil {
		_ = apiCmd.Process.Kill()
		log.Printf("Failed to start Background Worker process: %v", err)
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: Background Worker process started (PID: %d)...", bgCmd.Process.Pid)

	defer func() {
		log.Println("Integration Test Teardown: Shutting down application processes...")
		log.Println("Sending SIGTERM to Background Worker...")
		if processErr := bgCmd.Process.Signal(syscall.SIGTERM); processErr != nil {
			log.Printf("Integration Test Teardown: Failed to send SIGTERM to BG Worker: %v. Killing.", processErr)
			_ = bgCmd.Process.Kill()
		} else {
			_, waitErr := bgCmd.Process.Wait()
			if waitErr != nil && waitErr.Error() != "signal: killed" && waitErr.Error() != "exit status 1" {
				log.Printf("Integration Test Teardown: Error waiting for BG Worker exit: %v", waitErr)
			}
		}
		log.Println("Sending SIGTERM to API Process...")
		if processErr := apiCmd.Process.Signal(syscall.SIGTERM); processErr != nil {
			log.Printf("Integration Test Teardown: Failed to send SIGTERM to API Process: %v. Killing.", processErr)
			_ = apiCmd.Process.Kill()
		} else {
			_, waitErr := apiCmd.Process.Wait()
			if waitErr != nil && waitErr.Error() != "signal: killed" && waitErr.Error() != "exit status 1" {
				log.Printf("Integration Test Teardown: Error waiting for API Process exit: %v", waitErr)
			}
		}
		log.Println("Integration Test Teardown: Application processes stopped.")
	}()

	// Wait for the API application to be ready by polling the ping endpoint
	log.Printf("Integration Test Setup: Waiting for API application to become ready at %s...", pingEndpoint)
	startTime := time.Now()
	ready := false
	for time.Since(startTime) < startupTimeout {
		resp, err := http.Get(pingEndpoint)
		if err == nil && resp.StatusCode == http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if string(bodyBytes) == "pong" {
				log.Println("Integration Test Setup: Application is ready!")
				ready = true
				break
			}
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(200 * time.Millisecond)
	}

	if !ready {
		log.Printf("Application failed to start within %v", startupTimeout)
		os.Exit(1)
	}

	// Brief pause so the background worker has its task server up before
	// tests start enqueuing email deliveries.
	log.Println("Integration Test Setup: Pausing briefly for background worker startup...")
	time.Sleep(2 * time.Second)

	log.Println("Integration Test Setup: Running tests...")
	exitCode := m.Run()
	log.Printf("Integration Test Teardown: Tests finished with exit code %d.", exitCode)
	// Let TestMain return normally so deferred cleanup runs.
}

// --- HTTP helpers ---

func doJSON(t *testing.T, method, path string, payload interface{}, jwtToken string) (map[string]interface{}, *http.Response) {
	t.Helper()
	var bodyReader io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		require.NoError(t, err, "Failed to marshal request payload")
		bodyReader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequest(method, testAppURL+path, bodyReader)
	require.NoError(t, err, "Failed to create HTTP request")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if jwtToken != "" {
		req.Header.Set("Authorization", "Bearer "+jwtToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "%s %s request failed", method, path)

	respBodyBytes, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, readErr, "Failed to read response body")

	var respBody map[string]interface{}
	if unmarshalErr := json.Unmarshal(respBodyBytes, &respBody); unmarshalErr != nil {
		respBody = map[string]interface{}{"raw_body": string(respBodyBytes)}
	}
	return respBody, resp
}

// signupUser registers an account and returns its token and response body.
func signupUser(t *testing.T, email string, isAgent bool) (token string, respBody map[string]interface{}) {
	t.Helper()
	respBody, resp := doJSON(t, "POST", "/v1/auth/signup", map[string]interface{}{
		"email":     email,
		"password":  "StrongP@ssw0rd123",
		"full_name": "Integration Tester",
		"is_agent":  isAgent,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, "signup status code, body: %+v", respBody)
	token, _ = respBody["token"].(string)
	require.NotEmpty(t, token, "signup should return a token")
	return token, respBody
}

func loginUser(t *testing.T, email string) (token string, respBody map[string]interface{}) {
	t.Helper()
	respBody, resp := doJSON(t, "POST", "/v1/auth/login", map[string]interface{}{
		"email":    email,
		"password": "StrongP@ssw0rd123",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "login status code, body: %+v", respBody)
	token, _ = respBody["token"].(string)
	require.NotEmpty(t, token, "login should return a token")
	return token, respBody
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@example.com", prefix, time.Now().UnixNano())
}

// --- Tests ---

func TestIntegration_Ping(t *testing.T) {
	resp, err := http.Get(pingEndpoint)
	assert.NoError(t, err, "Request to %s should not fail", pingEndpoint)
	if err != nil {
		t.FailNow()
	}
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	bodyBytes, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, "pong", string(bodyBytes))
}

func TestIntegration_BuyerSignupAndLogin(t *testing.T) {
	email := uniqueEmail("buyer")

	_, signupBody := signupUser(t, email, false)
	assert.Nil(t, signupBody["redirect_to"], "buyers never get an onboarding redirect")

	// The welcome email is delivered by the background worker
	emailData := getEmailFromServiceAPI(t, "welcome", email)
	assert.Contains(t, emailData["subject"], "Welcome")

	_, loginBody := loginUser(t, email)
	assert.Nil(t, loginBody["redirect_to"])
}

func TestIntegration_AgentOnboardingRedirect(t *testing.T) {
	email := uniqueEmail("agent")

	// Signup as agent: the profile is minimal, so the client is sent to setup
	token, signupBody := signupUser(t, email, true)
	require.Equal(t, "/agent-setup", signupBody["redirect_to"], "fresh agent should be redirected to setup")

	// Signing in again before completing setup keeps redirecting
	_, loginBody := loginUser(t, email)
	require.Equal(t, "/agent-setup", loginBody["redirect_to"])

	// Complete the profile
	updateBody, updateResp := doJSON(t, "PUT", "/v1/my/agent", map[string]interface{}{
		"title":   "Senior Property Consultant",
		"company": "Prime Homes",
		"bio":     "Ten years selling homes in Accra.",
	}, token)
	require.Equal(t, http.StatusOK, updateResp.StatusCode, "update agent profile, body: %+v", updateBody)
	require.Equal(t, true, updateBody["complete"], "profile should be complete after setup")

	// The next sign-in goes straight through
	_, loginBody2 := loginUser(t, email)
	assert.Nil(t, loginBody2["redirect_to"], "completed agents should not be redirected")
}

func TestIntegration_PropertyLifecycleAndSearch(t *testing.T) {
	email := uniqueEmail("lister")
	token, _ := signupUser(t, email, false)

	title := fmt.Sprintf("Integration Villa %d", time.Now().UnixNano())
	createBody, createResp := doJSON(t, "POST", "/v1/property", map[string]interface{}{
		"title":         title,
		"description":   "Spacious villa with garden",
		"price":         850000,
		"location":      "East Legon, Accra",
		"beds":          4,
		"baths":         3,
		"property_type": "For Sale",
	}, token)
	require.Equal(t, http.StatusCreated, createResp.StatusCode, "create property, body: %+v", createBody)
	propertyID, _ := createBody["id"].(string)
	require.NotEmpty(t, propertyID, "created property should have an ID")

	// Search finds the listing by title substring and price bucket
	searchPath := fmt.Sprintf("/v1/property/search?q=%s&type=%s&price=500k-1m",
		url.QueryEscape(title), url.QueryEscape("For Sale"))
	searchBody, searchResp := doJSON(t, "GET", searchPath, nil, "")
	require.Equal(t, http.StatusOK, searchResp.StatusCode)
	results, _ := searchBody["data"].([]interface{})
	found := false
	for _, item := range results {
		prop, _ := item.(map[string]interface{})
		if prop["id"] == propertyID {
			found = true
			break
		}
	}
	assert.True(t, found, "expected to find the created property in search results")

	// Fetch by ID
	getBody, getResp := doJSON(t, "GET", "/v1/property/"+propertyID, nil, "")
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	assert.Equal(t, title, getBody["title"])

	// Delete and confirm it is gone
	_, deleteResp := doJSON(t, "DELETE", "/v1/property/"+propertyID, nil, token)
	require.Equal(t, http.StatusOK, deleteResp.StatusCode)

	_, getResp2 := doJSON(t, "GET", "/v1/property/"+propertyID, nil, "")
	assert.Equal(t, http.StatusNotFound, getResp2.StatusCode)
}

func TestIntegration_ContactAgentDeliversEmail(t *testing.T) {
	email := uniqueEmail("contactable_agent")
	token, _ := signupUser(t, email, true)

	// Complete the profile so the directory entry is usable
	_, updateResp := doJSON(t, "PUT", "/v1/my/agent", map[string]interface{}{
		"title":   "Letting Specialist",
		"company": "Coastal Realty",
		"bio":     "Rentals along the coast.",
	}, token)
	require.Equal(t, http.StatusOK, updateResp.StatusCode)

	myAgentBody, myAgentResp := doJSON(t, "GET", "/v1/my/agent", nil, token)
	require.Equal(t, http.StatusOK, myAgentResp.StatusCode)
	agentData, _ := myAgentBody["agent"].(map[string]interface{})
	require.NotNil(t, agentData, "my/agent should return the agent record")
	agentID, _ := agentData["id"].(string)
	require.NotEmpty(t, agentID)

	// A prospect (no account) contacts the agent
	contactBody, contactResp := doJSON(t, "POST", "/v1/agent/"+agentID+"/contact", map[string]interface{}{
		"name":    "Prospect Client",
		"email":   uniqueEmail("prospect"),
		"message": "Is the two bedroom apartment still available?",
	}, "")
	require.Equal(t, http.StatusAccepted, contactResp.StatusCode, "contact agent, body: %+v", contactBody)
	require.NotEmpty(t, contactBody["id"], "contact should have an ID")

	// The notification email to the agent is delivered by the background worker
	emailData := getEmailFromServiceAPI(t, "agent_contact", email)
	body, _ := emailData["body"].(string)
	assert.Contains(t, body, "Prospect Client")
	assert.Contains(t, body, "Is the two bedroom apartment still available?")
}

// --- Seed / cleanup ---

// seedTestData connects to MongoDB and inserts the email templates the
// background worker renders during the tests.
func seedTestData() error {
	log.Println("Seeding test data...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoURI := os.Getenv("MONGO_URI")
	dbName := os.Getenv("MONGO_DB_NAME")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB for seeding: %w", err)
	}
	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting seeding client: %v", err)
		}
	}()

	db := client.Database(dbName)
	templateCollection := db.Collection("email_templates")

	templatesToSeed := []models.EmailTemplate{
		{
			Base:       models.NewBase(),
			TemplateID: "welcome",
			Locale:     "en-US",
			Subject:    "Welcome to HomeBase, {{.full_name}}!",
			Body:       "Hi {{.full_name}}, thanks for joining. Start browsing properties today.",
		},
		{
			Base:       models.NewBase(),
			TemplateID: "welcome_agent",
			Locale:     "en-US",
			Subject:    "Welcome to HomeBase, {{.full_name}}!",
			Body:       "Hi {{.full_name}}, complete your agent profile to appear in the directory.",
		},
		{
			Base:       models.NewBase(),
			TemplateID: "agent_contact",
			Locale:     "en-US",
			Subject:    "A client has reached out to you",
			Body:       "{{.sender_name}} ({{.sender_email}}) sent you a message:\n\n{{.message}}",
		},
	}

	for _, template := range templatesToSeed {
		// Delete by template_id and locale first to avoid immutable _id update errors
		delFilter := bson.M{"template_id": template.TemplateID, "locale": template.Locale}
		_, err = templateCollection.DeleteOne(ctx, delFilter)
		if err != nil {
			return fmt.Errorf("failed to delete existing '%s' template: %w", template.TemplateID, err)
		}

		_, err = templateCollection.InsertOne(ctx, template)
		if err != nil {
			return fmt.Errorf("failed to seed '%s' template: %w", template.TemplateID, err)
		}
		log.Printf("Successfully seeded '%s' email template.", template.TemplateID)
	}

	return nil
}

// cleanupTestData removes seeded test data.
func cleanupTestData() {
	log.Println("Cleaning up seeded test data...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoURI := os.Getenv("MONGO_URI")
	dbName := os.Getenv("MONGO_DB_NAME")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Printf("Failed to connect to MongoDB for cleanup: %v", err)
		return
	}
	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting cleanup client: %v", err)
		}
	}()

	db := client.Database(dbName)
	templateCollection := db.Collection("email_templates")

	templateIDs := []string{"welcome", "welcome_agent", "agent_contact"}
	filter := bson.M{
		"template_id": bson.M{"$in": templateIDs},
		"locale":      "en-US",
	}
	deleteResult, err := templateCollection.DeleteMany(ctx, filter)
	if err != nil {
		log.Printf("Failed to delete seeded templates during cleanup: %v", err)
	} else {
		log.Printf("Deleted %d seeded templates during cleanup.", deleteResult.DeletedCount)
	}

	log.Println("Finished cleaning up seeded data.")
}

// --- Service API helpers ---

// callServiceAPI makes a request to the Service API.
func callServiceAPI(t *testing.T, method string, args []interface{}) (map[string]interface{}, *http.Response, error) {
	t.Helper()
	payload := map[string]interface{}{
		"method":    method,
		"arguments": args,
	}
	bodyBytes, err := json.Marshal(payload)
	require.NoError(t, err, "Failed to marshal service API payload")

	req, err := http.NewRequest("POST", testServiceApiURL+"/api", bytes.NewReader(bodyBytes))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)

	var respBodyBytes []byte
	if resp != nil && resp.Body != nil {
		respBodyBytes, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
	}

	if err != nil {
		return nil, resp, err
	}

	var respBody map[string]interface{}
	unmarshalErr := json.Unmarshal(respBodyBytes, &respBody)
	if unmarshalErr != nil {
		log.Printf("Failed to unmarshal service API response: %v. Body: %s", unmarshalErr, string(respBodyBytes))
		respBody = map[string]interface{}{"raw_body": string(respBodyBytes)}
	}

	return respBody, resp, nil
}

// getEmailFromServiceAPI polls the service API until a mock email of the given
// kind addressed to emailAddr shows up.
func getEmailFromServiceAPI(t *testing.T, kind, emailAddr string) map[string]interface{} {
	t.Helper()
	var emailData map[string]interface{}
	found := false
	pollTimeout := time.After(10 * time.Second)
	pollTicker := time.NewTicker(500 * time.Millisecond)
	defer pollTicker.Stop()

	log.Printf("Polling Service API for email: Kind=%s, Email=%s", kind, emailAddr)

	for !found {
		select {
		case <-pollTimeout:
			t.Fatalf("Timeout waiting for email via Service API (Kind: %s, Email: %s)", kind, emailAddr)
		case <-pollTicker.C:
			respBody, resp, err := callServiceAPI(t, "getTestEmail", []interface{}{kind, emailAddr})
			if err != nil {
				log.Printf("Error calling getTestEmail Service API: %v", err)
				continue
			}
			if resp.StatusCode == http.StatusOK {
				success, _ := respBody["success"].(bool)
				if success {
					actualEmailPayload, ok := respBody["data"].(map[string]interface{})
					if ok {
						log.Printf("Found email via Service API: %+v", actualEmailPayload)
						emailData = actualEmailPayload
						found = true
					} else {
						log.Printf("Service API returned success but 'data' field was not a map: %+v", respBody["data"])
					}
				} else {
					log.Printf("getTestEmail unsuccessful (Code: %d): %s. Polling...", resp.StatusCode, respBody["error"])
				}
			} else if resp.StatusCode != http.StatusNotFound {
				log.Printf("getTestEmail returned status %d. Polling...", resp.StatusCode)
			}
		}
	}
	require.True(t, found, "Failed to find email via Service API")
	return emailData
}
