package config

// builtinDefaults supplies every field a YAML file is permitted to omit,
// mirroring the teacher's GetBuiltinConfig/Defaults merge-over-builtin
// pattern, scaled down to the single workflow.yaml file this engine reads.
func builtinDefaults() *YAMLConfig {
	sigmaFallback := true
	return &YAMLConfig{
		AgentModels:           map[string]AgentModelYAML{},
		AgentPrompts:          map[string]string{},
		QAEnabled:             map[string]bool{},
		EnabledSubAgents:      map[string]bool{"cmdline": true, "process_lineage": true, "hunt_queries": true},
		Thresholds:            &ThresholdsYAML{Ranking: 5, Junk: 0.5, Similarity: 0.8},
		MinHuntableChunks:     1,
		SigmaFallbackEnabled:  &sigmaFallback,
		OSDetectUnknownPolicy: "proceed",
		SimilarityK:           10,
		AutoTriggerThreshold:  7,
		ExecutionDeadlineS:    1800,
	}
}
