package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/middleware"
	"github.com/zhouzirui/jelajah/backend/internal/service/ai"
	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: token 或 chat")
	userID := flag.String("user", "", "token 模式下写入的用户 ID")
	ttl := flag.Duration("ttl", 24*time.Hour, "token 有效期")
	message := flag.String("message", "", "chat 模式下发送的消息")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	switch *mode {
	case "token":
		runToken(cfg, *userID, *ttl)
	case "chat":
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		runChat(ctx, cfg, *message)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=token 或 -mode=chat 指定测试模式")
	}
}

func runToken(cfg *config.Config, userID string, ttl time.Duration) {
	if strings.TrimSpace(userID) == "" {
		log.Fatal("token 模式需要通过 -user 指定用户 ID")
	}

	token, err := middleware.SignToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.UserClaim, userID, ttl)
	if err != nil {
		log.Fatalf("签发 token 失败: %v", err)
	}

	log.Printf("token 签发成功: user=%s expires_in=%s", userID, ttl)
	log.Println(token)
}

func runChat(ctx context.Context, cfg *config.Config, message string) {
	if strings.TrimSpace(message) == "" {
		log.Fatal("chat 模式需要通过 -message 提供消息内容")
	}

	backend, err := ai.NewBackend(ctx, cfg.AI, ai.DefaultPrompt)
	if err != nil {
		log.Fatalf("生成后端初始化失败: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	client := ai.NewClient(backend,
		ai.WithPolicy(retry.Policy{
			MaxAttempts: cfg.AI.RetryMaxAttempts,
			BaseDelay:   cfg.AI.RetryBaseDelay,
			MaxDelay:    cfg.AI.RetryMaxDelay,
			Multiplier:  2,
			Jitter:      cfg.AI.RetryJitter,
		}),
		ai.WithTimeout(cfg.AI.Timeout),
		ai.WithMaxLength(cfg.Chat.MaxMessageLength),
		ai.WithLogger(logger),
	)

	log.Printf("开始进行对话测试: backend=%s", client.BackendName())

	started := time.Now()
	reply, err := client.Generate(ctx, nil, message)
	if err != nil {
		log.Fatalf("对话调用失败: %v", err)
	}

	log.Printf("对话成功: 耗时=%dms", time.Since(started).Milliseconds())
	log.Println(reply)
}
