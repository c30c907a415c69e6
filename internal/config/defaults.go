package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./storage/index.db"
	}
	if cfg.Ingest.Root == "" {
		cfg.Ingest.Root = "./data/docs"
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".pdf", ".txt", ".md", ".docx"}
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1500
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 250
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Rerank.TimeoutSeconds == 0 {
		cfg.Rerank.TimeoutSeconds = 30
	}
	if cfg.Answer.BaseURL == "" {
		cfg.Answer.BaseURL = cfg.Embedding.BaseURL
	}
	if cfg.Answer.Model == "" {
		cfg.Answer.Model = "gpt-4o-mini"
	}
	if cfg.Answer.ContextChunks == 0 {
		cfg.Answer.ContextChunks = 3
	}
	if cfg.Answer.TimeoutSeconds == 0 {
		cfg.Answer.TimeoutSeconds = 120
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 5
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 100
	}
	if cfg.Search.CandidateMultiplier == 0 {
		cfg.Search.CandidateMultiplier = 2
	}
	if cfg.Search.RerankMultiplier == 0 {
		cfg.Search.RerankMultiplier = 3
	}
	if cfg.Search.LexicalWeight == 0 && cfg.Search.VectorWeight == 0 {
		cfg.Search.LexicalWeight = 0.5
		cfg.Search.VectorWeight = 0.5
	}
}
