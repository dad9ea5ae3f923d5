// Package problem описывает задачи олимпиады и их блоки.
package problem

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

const (
	// ProblemsPerBlock - задач в одном блоке.
	ProblemsPerBlock = 3

	// MaxBlocks - блоков на одну параллель.
	MaxBlocks = 3

	// MaxNumber - максимальный сквозной номер задачи.
	MaxNumber = ProblemsPerBlock * MaxBlocks
)

// ══════════════════════════════════════════════════════════════════════════════
// PROBLEM
// ══════════════════════════════════════════════════════════════════════════════

// Problem - задача олимпиады. Название уникально в пределах олимпиады.
type Problem struct {
	ID      int64
	OlympID int64
	Name    string
}

// NewProblem создаёт задачу с проверкой названия.
func NewProblem(olympID int64, name string) (*Problem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("problem", "Create", shared.ErrValidation, "Необходимо указать название задачи")
	}
	return &Problem{OlympID: olympID, Name: name}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BLOCK TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Tier - параллель участников.
type Tier string

const (
	// TierJunior - младшая параллель (до 10 класса).
	TierJunior Tier = "junior"
	// TierSenior - старшая параллель (10-11 классы).
	TierSenior Tier = "senior"
)

// IsValid проверяет параллель.
func (t Tier) IsValid() bool {
	return t == TierJunior || t == TierSenior
}

// TierOf возвращает параллель для класса.
func TierOf(g shared.Grade) Tier {
	if g.IsJunior() {
		return TierJunior
	}
	return TierSenior
}

// BlockType - тип блока: параллель и порядковый номер блока.
type BlockType struct {
	Tier     Tier
	Sequence int
}

// NewBlockType создаёт тип блока с проверкой.
func NewBlockType(tier Tier, sequence int) (BlockType, error) {
	bt := BlockType{Tier: tier, Sequence: sequence}
	if !bt.IsValid() {
		return BlockType{}, shared.NewDomainError("problem", "BlockType", shared.ErrValidation,
			fmt.Sprintf("Некорректный тип блока: %s", bt))
	}
	return bt, nil
}

// ParseBlockType разбирает строку вида "junior_1".
func ParseBlockType(s string) (BlockType, error) {
	tier, seq, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "_")
	if !ok {
		return BlockType{}, shared.NewDomainError("problem", "ParseBlockType", shared.ErrValidation,
			"Некорректный тип блока: "+s)
	}
	n, err := strconv.Atoi(seq)
	if err != nil {
		return BlockType{}, shared.WrapError("problem", "ParseBlockType", shared.ErrValidation,
			"Некорректный тип блока: "+s, err)
	}
	return NewBlockType(Tier(tier), n)
}

// IsValid проверяет параллель и номер блока.
func (b BlockType) IsValid() bool {
	return b.Tier.IsValid() && b.Sequence >= 1 && b.Sequence <= MaxBlocks
}

// String возвращает строку вида "junior_1".
func (b BlockType) String() string {
	return fmt.Sprintf("%s_%d", b.Tier, b.Sequence)
}

// ══════════════════════════════════════════════════════════════════════════════
// BLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Block - группа из трёх задач. Блок с типом выдаётся участникам нужной
// параллели, блок без типа - просто группировка.
type Block struct {
	ID       int64
	OlympID  int64
	Problems [ProblemsPerBlock]int64
	Type     *BlockType

	// Path - ключ файла с условиями в хранилище, может быть пустым.
	Path string
}

// NewBlock создаёт блок из трёх разных задач.
func NewBlock(olympID int64, problems []int64, blockType *BlockType, path string) (*Block, error) {
	if len(problems) != ProblemsPerBlock {
		return nil, shared.NewDomainError("problem", "CreateBlock", shared.ErrValidation, "В блоке должно быть три задачи")
	}
	b := &Block{OlympID: olympID, Type: blockType, Path: strings.TrimSpace(path)}
	seen := make(map[int64]bool, ProblemsPerBlock)
	for i, id := range problems {
		if id <= 0 || seen[id] {
			return nil, shared.NewDomainError("problem", "CreateBlock", shared.ErrValidation, "В блоке должно быть три разные задачи")
		}
		seen[id] = true
		b.Problems[i] = id
	}
	if blockType != nil && !blockType.IsValid() {
		return nil, shared.NewDomainError("problem", "CreateBlock", shared.ErrValidation,
			fmt.Sprintf("Некорректный тип блока: %s", blockType))
	}
	return b, nil
}

// IndexOf возвращает позицию задачи в блоке или -1.
func (b *Block) IndexOf(problemID int64) int {
	for i, id := range b.Problems {
		if id == problemID {
			return i
		}
	}
	return -1
}

// Contains проверяет, входит ли задача в блок.
func (b *Block) Contains(problemID int64) bool {
	return b.IndexOf(problemID) >= 0
}

// IsLast проверяет, что задача последняя в блоке.
func (b *Block) IsLast(problemID int64) bool {
	return b.IndexOf(problemID) == ProblemsPerBlock-1
}

// Sequence возвращает номер блока или 0 для блока без типа.
func (b *Block) Sequence() int {
	if b.Type == nil {
		return 0
	}
	return b.Type.Sequence
}

// Number возвращает сквозной номер задачи для участника этого блока или 0.
func (b *Block) Number(problemID int64) int {
	i := b.IndexOf(problemID)
	if i < 0 || b.Type == nil {
		return 0
	}
	return (b.Type.Sequence-1)*ProblemsPerBlock + i + 1
}

// ══════════════════════════════════════════════════════════════════════════════
// NUMBERING
// ══════════════════════════════════════════════════════════════════════════════

// Locate переводит сквозной номер задачи n (с единицы) в номер блока и позицию
// в нём: ((n-1)/3+1, (n-1)%3).
func Locate(n int) (block, index int, err error) {
	if n < 1 || n > MaxNumber {
		return 0, 0, shared.ErrProblemNumberOutOfRange
	}
	return (n-1)/ProblemsPerBlock + 1, (n - 1) % ProblemsPerBlock, nil
}
