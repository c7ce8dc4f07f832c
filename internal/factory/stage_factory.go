// Copyright 2025 seclens <opensource@seclens.io>. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package factory

import (
	"fmt"

	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/domain"
	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/logger"
)

// StageType identifies one pipeline stage.
type StageType string

const (
	StageTypeDedup     StageType = "dedup"
	StageTypeAnonymize StageType = "anonymize"
	StageTypeMask      StageType = "mask"
)

// StageFactory defines the interface for creating pipeline stages.
type StageFactory interface {
	// CreateStage creates a new stage instance of the specified type,
	// configured from the profile.
	CreateStage(stageType StageType, profile *config.Profile, log *logger.Logger) (domain.Stage, error)

	// RegisterStageConstructor registers a constructor for a stage type.
	RegisterStageConstructor(stageType StageType, constructor StageConstructor) error

	// GetSupportedStages returns a list of all registered stage types.
	GetSupportedStages() []StageType
}

// StageConstructor is a function that creates a new stage instance. The
// profile section for the stage is set when the constructor runs.
type StageConstructor func(profile *config.Profile, log *logger.Logger) (domain.Stage, error)

// defaultFactory implements StageFactory.
type defaultFactory struct {
	constructors map[StageType]StageConstructor
}

// NewStageFactory creates a new stage factory.
func NewStageFactory() StageFactory {
	return &defaultFactory{
		constructors: make(map[StageType]StageConstructor),
	}
}

// CreateStage creates a new stage instance.
func (f *defaultFactory) CreateStage(stageType StageType, profile *config.Profile, log *logger.Logger) (domain.Stage, error) {
	constructor, exists := f.constructors[stageType]
	if !exists {
		return nil, errors.New(errors.ErrCodePipelineStage, fmt.Sprintf("unknown stage type: %s", stageType))
	}

	stage, err := constructor(profile, log)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePipelineStage, fmt.Sprintf("failed to construct stage of type '%s'", stageType), err)
	}

	return stage, nil
}

// RegisterStageConstructor registers a constructor for a stage type.
func (f *defaultFactory) RegisterStageConstructor(stageType StageType, constructor StageConstructor) error {
	if constructor == nil {
		return errors.New(errors.ErrCodeConfig, "constructor cannot be nil")
	}

	if _, exists := f.constructors[stageType]; exists {
		return errors.New(errors.ErrCodeConfig, fmt.Sprintf("stage type '%s' already registered", stageType))
	}

	f.constructors[stageType] = constructor
	return nil
}

// GetSupportedStages returns a list of all registered stage types.
func (f *defaultFactory) GetSupportedStages() []StageType {
	stages := make([]StageType, 0, len(f.constructors))
	for stageType := range f.constructors {
		stages = append(stages, stageType)
	}
	return stages
}

// Global factory instance
var globalFactory = NewStageFactory()

// RegisterStage registers a stage constructor with the global factory.
func RegisterStage(stageType StageType, constructor StageConstructor) error {
	return globalFactory.RegisterStageConstructor(stageType, constructor)
}

// CreateStage creates a stage using the global factory.
func CreateStage(stageType StageType, profile *config.Profile, log *logger.Logger) (domain.Stage, error) {
	return globalFactory.CreateStage(stageType, profile, log)
}

// GetSupportedStages returns supported stages from the global factory.
func GetSupportedStages() []StageType {
	return globalFactory.GetSupportedStages()
}
