package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"tribu-agent/handler"
	appconfig "tribu-agent/internal/config"
	"tribu-agent/internal/conversation"
	"tribu-agent/internal/extract"
	"tribu-agent/internal/integrations/openai"
	"tribu-agent/internal/integrations/paramstore"
	"tribu-agent/internal/integrations/qloo"
	"tribu-agent/internal/logging"
	"tribu-agent/internal/recommend"
	"tribu-agent/internal/repository"
	"tribu-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	envFiles, err := appconfig.LoadEnvFiles(appconfig.EnvFiles(os.Getenv("DOTENV_FILES"))...)
	if err != nil {
		slog.Error("failed to load env files", "err", err)
		os.Exit(1)
	}

	// ---- Configuration (read only here) ----
	logger, _, err := logging.New(logging.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	}, os.Stdout)
	if err != nil {
		slog.Error("failed to configure logging", "err", err)
		os.Exit(1)
	}
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := strings.TrimRight(mustEnv("PARAM_PREFIX"), "/")
	policyName := mustEnv("COMPLETION_POLICY")
	extractorKind := os.Getenv("EXTRACTOR")
	maxInputLen := envInt("MAX_INPUT_LENGTH", 500)
	transcriptLimit := envInt("TRANSCRIPT_LIMIT", 50)
	qlooBaseURL := os.Getenv("QLOO_BASE_URL")

	policy, err := conversation.ParsePolicy(policyName)
	if err != nil {
		logger.Error("invalid completion policy", "policy", policyName, "err", err)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		logger.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		logger.Error("failed to create state client", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(ssmClient, paramPrefix, openai.WithTemperature(0))
	if err != nil {
		logger.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	var qlooOpts []qloo.Option
	if qlooBaseURL != "" {
		qlooOpts = append(qlooOpts, qloo.WithBaseURL(qlooBaseURL))
	}
	qlooClient, err := qloo.NewClient(ssmClient, paramPrefix, qlooOpts...)
	if err != nil {
		logger.Error("failed to create Qloo client", "err", err)
		os.Exit(1)
	}

	// ---- Domain services ----
	model := ""
	if strings.EqualFold(strings.TrimSpace(extractorKind), extract.KindLLM) {
		modelParam := paramPrefix + "/config/openai_model"
		params, err := ssmClient.GetParameters(ctx, modelParam)
		if err != nil {
			logger.Error("failed to load extractor model", "err", err)
			os.Exit(1)
		}
		model = params[modelParam]
	}
	extractor, err := extract.New(extractorKind, openaiClient, model, logger)
	if err != nil {
		logger.Error("failed to create extractor", "err", err)
		os.Exit(1)
	}
	recommender, err := recommend.NewService(qlooClient, logger)
	if err != nil {
		logger.Error("failed to create recommender", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	conversationService, err := usecase.NewConversationService(openaiClient, stateClient, recommender, extractor, policy, maxInputLen, transcriptLimit)
	if err != nil {
		logger.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}
	profileService, err := usecase.NewProfileService(recommender)
	if err != nil {
		logger.Error("failed to create profile service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(conversationService, profileService, logger)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	logger.Info("tribu agent starting", "policy", policyName, "extractor", extractorKind, "env_files", envFiles)
	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
