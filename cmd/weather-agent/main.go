package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	weatheragent "github.com/sharoncxu/weather-agent"
	"github.com/sharoncxu/weather-agent/mcptools"
	"github.com/sharoncxu/weather-agent/models/gemini"
	"github.com/sharoncxu/weather-agent/models/openai"
	"github.com/sharoncxu/weather-agent/stores"
	"github.com/sharoncxu/weather-agent/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := weatheragent.NewChatConfig().
		WithStore(storeConfigFromEnv()).
		WithParallelTools(envBool("PARALLEL_TOOLS"))
	if prompt := os.Getenv("SYSTEM_PROMPT"); prompt != "" {
		config.WithSystemPrompt(prompt)
	}

	invoker, cleanup := connectTools()
	if cleanup != nil {
		defer cleanup()
	}

	agent := weatheragent.NewAgent(gatewayFromEnv(), invoker)

	conversationID := os.Getenv("CONVERSATION_ID")
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	session, err := weatheragent.NewChatSession(conversationID, agent, config)
	if err != nil {
		log.Fatalf("Failed to create chat session: %v", err)
	}

	handler := web.NewHandler(session)
	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		handler.WithStaticDir(dir)
	}

	r := gin.Default()
	handler.Register(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Listening on :%s (conversation %s)", port, conversationID)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func storeConfigFromEnv() *stores.StoreConfig {
	storeType := os.Getenv("STORE_TYPE")
	if storeType == "" {
		storeType = "memory"
	}
	return stores.NewStoreConfig(storeType, os.Getenv("STORE_DSN"))
}

func gatewayFromEnv() weatheragent.Gateway {
	provider := os.Getenv("MODEL_PROVIDER")
	modelName := os.Getenv("MODEL_NAME")

	switch provider {
	case "gemini":
		if modelName == "" {
			modelName = "gemini-2.0-flash"
		}
		return gemini.NewGeminiModel(modelName)
	default:
		if modelName == "" {
			modelName = "gpt-4o"
		}
		gateway := openai.NewOpenAIModel(modelName)
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			gateway.WithBaseURL(baseURL)
		}
		return gateway
	}
}

// connectTools dials the tool server named by the environment. Without one
// the agent still runs, it just cannot call tools.
func connectTools() (weatheragent.ToolInvoker, func()) {
	var toolConfig *mcptools.Config
	switch {
	case os.Getenv("MCP_COMMAND") != "":
		toolConfig = mcptools.NewStdioConfig(os.Getenv("MCP_COMMAND"), strings.Fields(os.Getenv("MCP_ARGS"))...)
	case os.Getenv("MCP_SSE_URL") != "":
		toolConfig = mcptools.NewSSEConfig(os.Getenv("MCP_SSE_URL"))
	default:
		log.Println("No tool server configured (set MCP_COMMAND or MCP_SSE_URL)")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mcptools.Connect(ctx, toolConfig)
	if err != nil {
		log.Printf("Tool server connection failed, continuing without tools: %v", err)
		return nil, nil
	}
	return client, func() { client.Close() }
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
