// Package app 根据配置组装所有组件：外部依赖、检索能力、服务与 HTTP 路由。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/handler"
	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/pipeline"
	"pdf-chat-go/internal/repository"
	"pdf-chat-go/internal/retrieval"
	"pdf-chat-go/internal/service"
	"pdf-chat-go/internal/session"
	"pdf-chat-go/internal/synth"
	"pdf-chat-go/pkg/database"
	"pdf-chat-go/pkg/embedding"
	"pdf-chat-go/pkg/es"
	"pdf-chat-go/pkg/kafka"
	"pdf-chat-go/pkg/llm"
	"pdf-chat-go/pkg/log"
	"pdf-chat-go/pkg/storage"
	"pdf-chat-go/pkg/tika"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// 后端名称
const (
	BackendMemory        = "memory"
	BackendRedis         = "redis"
	BackendElasticsearch = "elasticsearch"
)

// App 持有组装好的服务与需要在退出时释放的资源。
type App struct {
	Config    *config.Config
	Documents service.DocumentService
	Chat      service.ChatService
	Router    *gin.Engine
	Caps      handler.Capabilities

	store    session.Store
	rdb      *redis.Client
	producer *kafka.Producer
	closers  []func() error
	wg       sync.WaitGroup
}

// Options 控制组装方式。
type Options struct {
	// LocalOnly 忽略所有外部存储与消息组件，只使用内存实现（CLI 使用）。
	LocalOnly bool
	// WithoutRouter 不创建 HTTP 路由。
	WithoutRouter bool
}

// New 按配置初始化依赖。显式配置了的外部组件连接失败时直接返回错误。
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	// 1. 文本提取与切块
	var tikaClient *tika.Client
	if cfg.Extractor.Backend == pipeline.BackendTika && cfg.Tika.ServerURL != "" && !opts.LocalOnly {
		tikaClient = tika.NewClient(cfg.Tika)
	}
	extractor := pipeline.NewExtractor(cfg.Extractor.Backend, tikaClient)
	chunker := pipeline.NewChunker(cfg.Chunker.Strategy, cfg.Chunker.Size, cfg.Chunker.Overlap)
	processor := pipeline.NewProcessor(extractor, chunker)
	a.Caps.Extractor = pipeline.BackendFitz
	if _, isTika := extractor.(*pipeline.TikaExtractor); isTika {
		a.Caps.Extractor = pipeline.BackendTika
	}

	// 2. 检索能力
	caps, err := a.capabilities(cfg, opts)
	if err != nil {
		return nil, err
	}
	builder := retrieval.NewBuilder(caps)

	// 3. Redis、会话存储
	if cfg.Database.Redis.Addr != "" && !opts.LocalOnly {
		a.rdb, err = database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.rdb.Close)
	}
	storeOpts := session.Options{
		TTL:             cfg.Session.TTL(),
		JanitorInterval: cfg.Session.JanitorInterval(),
		MaxHistory:      cfg.Session.MaxHistory,
	}
	a.Caps.SessionBackend = BackendMemory
	if cfg.Session.Backend == BackendRedis && !opts.LocalOnly {
		if a.rdb == nil {
			return nil, errors.New("session.backend=redis 需要配置 database.redis.addr")
		}
		a.store = session.NewRedisStore(a.rdb, storeOpts)
		a.Caps.SessionBackend = BackendRedis
	} else {
		a.store = session.NewMemoryStore(storeOpts)
	}
	a.closers = append(a.closers, a.store.Close)

	// 4. 文档元数据与原始文件归档
	docRepo := repository.NewMemoryDocumentRepository()
	if cfg.Database.MySQL.DSN != "" && !opts.LocalOnly {
		db, err := database.InitMySQL(cfg.Database.MySQL.DSN, &model.Document{})
		if err != nil {
			return nil, err
		}
		docRepo = repository.NewDocumentRepository(db)
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
	}

	var archive storage.Archive
	switch {
	case opts.LocalOnly:
	case cfg.MinIO.Endpoint != "":
		archive, err = storage.NewMinIOArchive(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
	case cfg.Server.UploadDir != "":
		archive, err = storage.NewDiskArchive(cfg.Server.UploadDir)
		if err != nil {
			return nil, err
		}
	}
	a.Caps.Archive = archive != nil

	// 5. 异步重处理
	var producer service.TaskProducer
	if cfg.Kafka.Brokers != "" && !opts.LocalOnly {
		a.producer = kafka.NewProducer(cfg.Kafka)
		a.closers = append(a.closers, a.producer.Close)
		producer = a.producer
		a.Caps.AsyncTasks = true
	}

	// 6. LLM 与服务
	var llmClient llm.Client
	if cfg.LLM.Available() {
		llmClient = llm.NewClient(cfg.LLM)
		a.Caps.LLM = true
	}

	a.Documents = service.NewDocumentService(processor, builder, a.store, docRepo, archive, producer)
	locker := session.NewLocker()
	a.Chat = service.NewChatService(a.store, locker, llmClient, a.Documents, service.ChatOptions{
		TopK:           cfg.Retrieval.TopK,
		KeywordTopK:    cfg.Retrieval.KeywordTopK,
		HistoryForLLM:  cfg.Session.HistoryForLLM,
		MaxAnswerChars: cfg.Synth.MaxAnswerChars,
		Prompt: synth.PromptConfig{
			Rules:        cfg.LLM.Prompt.Rules,
			RefStart:     cfg.LLM.Prompt.RefStart,
			RefEnd:       cfg.LLM.Prompt.RefEnd,
			NoResultText: cfg.LLM.Prompt.NoResultText,
		},
		Generation: llm.DefaultGeneration(cfg.LLM.Generation),
	})

	if !opts.WithoutRouter {
		a.Router = NewRouter(cfg, a.Documents, a.Chat, a.Caps)
	}

	log.Infow("应用组件初始化完成",
		"extractor", a.Caps.Extractor,
		"embedding", a.Caps.Embedding,
		"vector_backend", a.Caps.VectorBackend,
		"llm", a.Caps.LLM,
		"session_backend", a.Caps.SessionBackend,
		"archive", a.Caps.Archive,
		"async_tasks", a.Caps.AsyncTasks,
	)
	ok = true
	return a, nil
}

// capabilities 在启动时一次性确定向量化能力与向量库。
func (a *App) capabilities(cfg *config.Config, opts Options) (retrieval.Capabilities, error) {
	caps := retrieval.Capabilities{
		MMR:             retrieval.MMRConfig{Enabled: cfg.Retrieval.MMREnabled, Lambda: cfg.Retrieval.MMRLambda},
		FetchK:          cfg.Retrieval.FetchK,
		QueryTimeout:    time.Duration(cfg.Retrieval.EmbedQueryTimeout) * time.Second,
		BuildTimeout:    cfg.IndexBuildTimeout(),
		IndexMinWordLen: cfg.Retrieval.IndexMinWordLen,
		QueryMinWordLen: cfg.Retrieval.QueryMinWordLen,
	}
	if !cfg.Embedding.Available() {
		log.Warnf("[IndexBuilder] 未配置 Embedding 服务, 所有文档将使用关键词检索")
		return caps, nil
	}
	caps.Embedder = embedding.NewClient(cfg.Embedding)
	a.Caps.Embedding = true

	if cfg.Retrieval.VectorBackend == BackendElasticsearch && cfg.Elasticsearch.Addresses != "" && !opts.LocalOnly {
		client, err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions)
		if err != nil {
			return caps, fmt.Errorf("初始化 Elasticsearch 失败: %w", err)
		}
		caps.Store = retrieval.NewESVectorStore(client, cfg.Elasticsearch.IndexName)
		a.Caps.VectorBackend = BackendElasticsearch
		return caps, nil
	}
	caps.Store = retrieval.NewMemoryVectorStore()
	a.Caps.VectorBackend = BackendMemory
	return caps, nil
}

// StartWorkers 启动后台 Kafka 消费者，ctx 结束时退出。
func (a *App) StartWorkers(ctx context.Context) {
	if a.producer == nil {
		return
	}
	var attempts kafka.AttemptCounter = &kafka.LocalAttempts{}
	if a.rdb != nil {
		attempts = kafka.RedisAttempts{RDB: a.rdb}
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		kafka.StartConsumer(ctx, a.Config.Kafka, a.Documents, attempts)
	}()
}

// Serve 启动 HTTP 服务器，ctx 结束时优雅停机。
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", a.Config.Server.Port),
		Handler: a.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("接收到停机信号，正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
	}
	return nil
}

// Close 等待后台任务结束并按初始化的逆序释放资源。
func (a *App) Close() error {
	a.wg.Wait()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
