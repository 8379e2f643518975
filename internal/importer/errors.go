package importer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig - параметры задачи не прошли проверку.
	ErrInvalidConfig = errors.New("некорректные параметры задачи")

	// ErrJobNotFound - задача не найдена в диспетчере.
	ErrJobNotFound = errors.New("задача не найдена")

	// ErrInternal - задача прервана паникой.
	ErrInternal = errors.New("внутренняя ошибка")

	// ErrDispatcherClosed - диспетчер остановлен и не принимает задачи.
	ErrDispatcherClosed = errors.New("диспетчер остановлен")
)

// Stage - этап обработки файла, на котором произошла ошибка.
type Stage string

const (
	StageRead    Stage = "read"
	StageDedup   Stage = "dedup"
	StageExists  Stage = "exists"
	StageUpload  Stage = "upload"
	StagePersist Stage = "persist"
	StageMove    Stage = "move"
)

// FileError - ошибка обработки одного файла. Не прерывает задачу.
type FileError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Path, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
