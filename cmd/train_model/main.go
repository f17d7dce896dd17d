package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"modelkit/config"
	"modelkit/db"
	"modelkit/iris"
	"modelkit/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (optional)")
	modelDir := flag.String("model_dir", "", "artifact output dir (overrides training.model_dir)")
	maxDepth := flag.Int("max_depth", 0, "max tree depth (default 5)")
	minSamplesSplit := flag.Int("min_samples_split", 0, "min samples to split a node (default 2)")
	dbPath := flag.String("db", "", "catalog database (overrides database.path)")
	noRecord := flag.Bool("no_record", false, "do not record the run in the catalog")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *modelDir != "" {
		cfg.Training.ModelDir = *modelDir
	}
	if *maxDepth != 0 {
		cfg.Training.MaxDepth = *maxDepth
	}
	if *minSamplesSplit != 0 {
		cfg.Training.MinSamplesSplit = *minSamplesSplit
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	result, err := iris.Train(cfg.Training.ModelDir, iris.TrainOptions{
		MaxDepth:        cfg.Training.MaxDepth,
		MinSamplesSplit: cfg.Training.MinSamplesSplit,
	})
	if err != nil {
		logger.Fatal("failed to train model", zap.Error(err))
	}
	logger.Info("model trained",
		zap.String("model", iris.QualifiedName),
		zap.Int("max_depth", result.MaxDepth),
		zap.Int("min_samples_split", result.MinSamplesSplit),
		zap.Int("samples", result.TrainedSamples),
		zap.Int("nodes", result.Nodes),
		zap.Float64("accuracy", result.Accuracy))

	if !*noRecord {
		if err := record(cfg.Database.Path, result); err != nil {
			logger.Fatal("failed to record training run", zap.Error(err))
		}
	}

	fmt.Printf("model saved to %s (accuracy=%.3f)\n", result.ArtifactPath, result.Accuracy)
}

func record(path string, result *iris.TrainResult) error {
	store, err := db.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.RecordTraining(context.Background(), db.TrainingLog{
		ModelName:       iris.QualifiedName,
		MaxDepth:        result.MaxDepth,
		MinSamplesSplit: result.MinSamplesSplit,
		Accuracy:        result.Accuracy,
		DataPoints:      result.TrainedSamples,
		ArtifactPath:    result.ArtifactPath,
	})
	return err
}
