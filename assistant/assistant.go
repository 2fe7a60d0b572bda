// Package assistant assembles a running assistant from configuration:
// backends are resolved through the registry, the team graph is validated,
// and the root agent is wrapped in an orchestrator.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/assistmesh/agent"
	"github.com/hupe1980/assistmesh/backend"
	"github.com/hupe1980/assistmesh/config"
	"github.com/hupe1980/assistmesh/knowledge"
	"github.com/hupe1980/assistmesh/logging"
	"github.com/hupe1980/assistmesh/orchestrator"
	"github.com/hupe1980/assistmesh/runstore"
	"github.com/hupe1980/assistmesh/runstore/memory"
	"github.com/hupe1980/assistmesh/runstore/redis"
	"github.com/hupe1980/assistmesh/runstore/sqlstore"
	"github.com/hupe1980/assistmesh/telemetry"
	"github.com/hupe1980/assistmesh/tool"
	"github.com/hupe1980/assistmesh/tool/calculator"
	"github.com/hupe1980/assistmesh/tool/file"
	"github.com/hupe1980/assistmesh/tool/shell"
	"github.com/hupe1980/assistmesh/tool/websearch"
)

// Options configures Build.
type Options struct {
	// Registry resolves backends (default backend.NewDefault).
	Registry *backend.Registry

	// Runs overrides the configured run store.
	Runs runstore.Store

	Metrics *telemetry.Metrics
	Logger  logging.Logger
}

// Assistant is a built assistant. Close releases its stores.
type Assistant struct {
	*orchestrator.Orchestrator

	Root      *agent.Agent
	Knowledge *knowledge.Base
	Registry  *backend.Registry
	Metrics   *telemetry.Metrics
}

// Build validates cfg and constructs the assistant. Backend names that match
// no registry entry fail with core.ErrUnsupportedBackend, invalid team graphs
// with core.ErrDelegationCycle. No network I/O happens here.
func Build(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*Assistant, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Registry == nil {
		opts.Registry = backend.NewDefault(func(o *backend.Options) {
			o.Logger = opts.Logger
			if opts.Metrics != nil {
				o.OnResolve = opts.Metrics.ObserveResolve
			}
		})
	}

	if err := ValidateGraph(cfg.Assistant); err != nil {
		return nil, err
	}

	rootCfg, _ := cfg.Agent(cfg.Assistant.Root)

	b := &builder{cfg: cfg, opts: opts}

	kb, err := b.knowledgeBase(rootCfg)
	if err != nil {
		return nil, err
	}

	runs := opts.Runs
	if runs == nil {
		runs, err = OpenRunStore(ctx, cfg.Storage)
		if err != nil {
			return nil, errors.Join(err, closeKnowledge(kb))
		}
	}
	b.kb, b.runs = kb, runs

	members := make([]*agent.Agent, 0, len(rootCfg.Team))
	for _, name := range rootCfg.Team {
		memberCfg, _ := cfg.Agent(name)
		m, err := b.agent(memberCfg, nil)
		if err != nil {
			return nil, errors.Join(err, runs.Close(), closeKnowledge(kb))
		}
		members = append(members, m)
	}

	root, err := b.agent(rootCfg, members)
	if err != nil {
		return nil, errors.Join(err, runs.Close(), closeKnowledge(kb))
	}

	orch := orchestrator.New(root, func(o *orchestrator.Options) {
		o.Runs = runs
		o.RequirePersistence = cfg.Assistant.RequirePersistence
		o.MaxConcurrentTurns = cfg.Assistant.MaxConcurrentTurns
		o.Logger = opts.Logger
		if kb != nil {
			o.Knowledge = kb
		}
		if opts.Metrics != nil {
			o.Metrics = opts.Metrics
		}
	})

	opts.Logger.Info("assistant.build.complete",
		"root", root.Name(),
		"team", len(members),
		"capabilities", root.InvocableNames(),
		"storage", cfg.Storage.Driver,
	)

	return &Assistant{
		Orchestrator: orch,
		Root:         root,
		Knowledge:    kb,
		Registry:     opts.Registry,
		Metrics:      opts.Metrics,
	}, nil
}

// Close releases the run store, including one passed through Options.Runs,
// and the knowledge base.
func (a *Assistant) Close() error {
	return errors.Join(a.Orchestrator.Close(), closeKnowledge(a.Knowledge))
}

func closeKnowledge(kb *knowledge.Base) error {
	if kb == nil {
		return nil
	}
	return kb.Close()
}

// OpenRunStore opens the configured run store.
func OpenRunStore(ctx context.Context, cfg config.StorageConfig) (runstore.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return memory.New(), nil
	case config.DriverSQLite, config.DriverPostgres:
		dialect := sqlstore.DialectSQLite
		if cfg.Driver == config.DriverPostgres {
			dialect = sqlstore.DialectPostgres
		}
		return sqlstore.Open(ctx, func(o *sqlstore.Options) {
			o.Dialect = dialect
			o.DSN = cfg.DSN
			o.TablePrefix = cfg.TablePrefix
		})
	case config.DriverRedis:
		return redis.New(func(o *redis.Options) {
			o.Addr = cfg.RedisAddr
			o.Password = cfg.RedisPassword
			o.DB = cfg.RedisDB
			if cfg.TablePrefix != "" {
				o.Prefix = cfg.TablePrefix
			}
		}), nil
	default:
		return nil, fmt.Errorf("assistant: unknown storage driver %q", cfg.Driver)
	}
}

type builder struct {
	cfg  *config.Config
	opts Options

	kb   *knowledge.Base
	runs runstore.Store
}

// knowledgeBase resolves the embedder and vector store. The collection name
// defaults to one derived from the root model and both backends.
func (b *builder) knowledgeBase(root config.AgentConfig) (*knowledge.Base, error) {
	kc := b.cfg.Knowledge
	if !kc.Enabled {
		return nil, nil
	}

	emb, err := b.opts.Registry.ResolveEmbedder(kc.Embedder.Name, kc.Embedder.Params)
	if err != nil {
		return nil, err
	}

	store, err := b.opts.Registry.ResolveVectorStore(kc.VectorStore.Name, kc.VectorStore.Params)
	if err != nil {
		return nil, err
	}

	collection := kc.Collection
	if collection == "" {
		collection = knowledge.CollectionName(root.LLM.Name, kc.Embedder.Name, kc.VectorStore.Name)
	}

	return knowledge.New(emb, store, func(o *knowledge.Options) {
		o.Collection = collection
		o.Logger = b.opts.Logger
		if kc.ChunkSize > 0 {
			o.ChunkSize = kc.ChunkSize
		}
		if kc.Concurrency > 0 {
			o.Concurrency = kc.Concurrency
		}
	}), nil
}

func (b *builder) agent(ac config.AgentConfig, team []*agent.Agent) (*agent.Agent, error) {
	llm, err := b.opts.Registry.ResolveModel(ac.LLM.Name, ac.LLM.Params)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
	}

	set, err := b.tools(ac.Tools)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
	}

	return agent.New(ac.Name, llm, func(o *agent.Options) {
		o.Role = ac.Role
		o.Description = ac.Description
		o.Instructions = agent.Texts(ac.Instructions...)
		o.ExtraInstructions = agent.Texts(ac.ExtraInstructions...)
		o.Tools = set
		o.Team = team
		o.Logger = b.opts.Logger
		o.AddDateTime = ac.AddDateTime
		o.Markdown = ac.Markdown

		if b.kb != nil && ac.Knowledge {
			o.Knowledge = b.kb
			o.AddReferences = ac.AddReferences
			if b.cfg.Knowledge.NumDocuments > 0 {
				o.NumDocuments = b.cfg.Knowledge.NumDocuments
			}
		}

		if ac.ReadChatHistory || ac.AddHistoryToMessages {
			o.Runs = b.runs
			o.ReadChatHistory = ac.ReadChatHistory
			o.AddHistoryToMessages = ac.AddHistoryToMessages
		}
		if ac.NumHistoryMessages > 0 {
			o.NumHistoryMessages = ac.NumHistoryMessages
		}
		if ac.MaxModelCalls != 0 {
			o.MaxModelCalls = ac.MaxModelCalls
		}
		if ac.FallbackText != "" {
			o.FallbackText = ac.FallbackText
		}
		if b.opts.Metrics != nil {
			o.Observer = b.opts.Metrics
		}
	})
}

func (b *builder) tools(tc config.ToolsConfig) (*tool.Set, error) {
	set, err := tool.NewSet()
	if err != nil {
		return nil, err
	}

	if tc.Calculator {
		if err := calculator.Register(set); err != nil {
			return nil, err
		}
	}

	if tc.FileDir != "" {
		fileTools, err := file.Tools(tc.FileDir, func(o *file.Options) { o.ReadOnly = tc.FileReadOnly })
		if err != nil {
			return nil, err
		}
		for _, t := range fileTools {
			if err := set.Register(t); err != nil {
				return nil, err
			}
		}
	}

	if tc.Shell {
		if err := set.Register(shell.New(func(o *shell.Options) {
			o.Dir = tc.ShellDir
			o.Allow = tc.ShellAllow
			if tc.ShellTime > 0 {
				o.Timeout = tc.ShellTime
			}
		})); err != nil {
			return nil, err
		}
	}

	if tc.WebSearch {
		if err := set.Register(websearch.New()); err != nil {
			return nil, err
		}
	}

	return set, nil
}
