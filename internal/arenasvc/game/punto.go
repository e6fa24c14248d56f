package game

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
)

const (
	BoardSize = 6
	winLength = 5

	deckValuesPerColor = 9 // cards 1..9 per color
	handSize           = 2
)

var (
	ErrGameOver     = errors.New("game is already over")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrIllegalMove  = errors.New("illegal move")
	ErrCardNotHeld  = errors.New("card not in hand")
	ErrOutOfBounds  = errors.New("position out of bounds")
	ErrUnknownColor = errors.New("unknown card color")
)

type Role string

const (
	RolePlayer1 Role = "player1"
	RolePlayer2 Role = "player2"
)

// Other returns the opposing role.
func (r Role) Other() Role {
	if r == RolePlayer1 {
		return RolePlayer2
	}
	return RolePlayer1
}

type Color string

const (
	Red    Color = "red"
	Blue   Color = "blue"
	Green  Color = "green"
	Yellow Color = "yellow"
)

// Each role plays two colors. A line win counts a single color only,
// not a mix of the role's two colors.
var roleColors = map[Role][]Color{
	RolePlayer1: {Red, Blue},
	RolePlayer2: {Green, Yellow},
}

// ColorOwner maps a color to the role that plays it.
func ColorOwner(c Color) (Role, bool) {
	for role, colors := range roleColors {
		for _, rc := range colors {
			if rc == c {
				return role, true
			}
		}
	}
	return "", false
}

type Card struct {
	Value int   `json:"value"`
	Color Color `json:"color"`
}

// Cell is one occupied board position. Owner is derived from Color at
// placement time and kept so scoring does not re-derive it.
type Cell struct {
	Value int   `json:"value"`
	Color Color `json:"color"`
	Owner Role  `json:"owner"`
}

const (
	ReasonFiveInLine    = "five_in_line"
	ReasonValueTiebreak = "value_tiebreak"
	ReasonDraw          = "draw"
)

// Result is the terminal outcome. Winner is empty when Draw is set.
type Result struct {
	Winner Role
	Draw   bool
	Reason string
}

// Punto is the deterministic rules engine for one game: board, decks,
// hands, and turn. It holds no connection or wager state.
type Punto struct {
	board     [BoardSize][BoardSize]*Cell
	decks     map[Role][]Card
	hands     map[Role][]Card
	turn      Role
	moveCount int
	result    *Result
}

// Seed derives the deterministic deal seed for a room and game generation,
// so a game can be replayed from its room id alone.
func Seed(roomID string, generation int) int64 {
	h := fnv.New64a()
	h.Write([]byte(roomID))
	fmt.Fprintf(h, "|%d", generation)
	return int64(h.Sum64())
}

// New builds a game with decks shuffled by the given seed. The first turn
// is drawn from the same rng so replays reproduce it.
func New(seed int64) *Punto {
	rng := rand.New(rand.NewSource(seed))

	g := &Punto{
		decks: make(map[Role][]Card),
		hands: make(map[Role][]Card),
	}

	for _, role := range []Role{RolePlayer1, RolePlayer2} {
		deck := make([]Card, 0, len(roleColors[role])*deckValuesPerColor)
		for _, c := range roleColors[role] {
			for v := 1; v <= deckValuesPerColor; v++ {
				deck = append(deck, Card{Value: v, Color: c})
			}
		}
		rng.Shuffle(len(deck), func(i, j int) {
			deck[i], deck[j] = deck[j], deck[i]
		})
		g.hands[role] = deck[:handSize]
		g.decks[role] = deck[handSize:]
	}

	if rng.Intn(2) == 0 {
		g.turn = RolePlayer1
	} else {
		g.turn = RolePlayer2
	}

	return g
}

// Turn returns whose move it is.
func (g *Punto) Turn() Role { return g.turn }

// MoveCount returns the number of accepted placements so far.
func (g *Punto) MoveCount() int { return g.moveCount }

// Result returns nil while the game is live.
func (g *Punto) Result() *Result { return g.result }

// Hand returns a copy of the role's current hand, highest value first.
func (g *Punto) Hand(role Role) []Card {
	hand := make([]Card, len(g.hands[role]))
	copy(hand, g.hands[role])
	sort.Slice(hand, func(i, j int) bool { return hand[i].Value > hand[j].Value })
	return hand
}

// Cell returns the occupant at (row, col), nil when empty.
func (g *Punto) Cell(row, col int) *Cell {
	if !inBounds(row, col) {
		return nil
	}
	return g.board[row][col]
}

// Place validates and applies one move for role. On an empty cell any card
// is legal; an occupied cell is captured only by a strictly higher value.
// A successful placement draws a replacement card, flips the turn and runs
// terminal detection.
func (g *Punto) Place(role Role, card Card, row, col int) error {
	if g.result != nil {
		return ErrGameOver
	}
	if role != g.turn {
		return ErrNotYourTurn
	}
	if !inBounds(row, col) {
		return ErrOutOfBounds
	}

	owner, ok := ColorOwner(card.Color)
	if !ok {
		return ErrUnknownColor
	}
	if owner != role {
		return fmt.Errorf("%w: color %s is not yours", ErrCardNotHeld, card.Color)
	}

	idx := -1
	for i, held := range g.hands[role] {
		if held == card {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %d %s", ErrCardNotHeld, card.Value, card.Color)
	}

	if occ := g.board[row][col]; occ != nil && occ.Value >= card.Value {
		return fmt.Errorf("%w: cannot play %d on %d", ErrIllegalMove, card.Value, occ.Value)
	}

	g.hands[role] = append(g.hands[role][:idx], g.hands[role][idx+1:]...)
	g.board[row][col] = &Cell{Value: card.Value, Color: card.Color, Owner: role}

	if deck := g.decks[role]; len(deck) > 0 {
		g.hands[role] = append(g.hands[role], deck[len(deck)-1])
		g.decks[role] = deck[:len(deck)-1]
	}

	g.moveCount++
	g.turn = role.Other()

	if winner, ok := g.lineWinner(row, col); ok {
		g.result = &Result{Winner: winner, Reason: ReasonFiveInLine}
		return nil
	}
	if g.exhausted() {
		g.result = g.resolveByValues()
	}

	return nil
}

// lineWinner checks the four line directions through the placed cell for
// five consecutive cells of the placed color. Every new line must pass
// through the cell that just changed.
func (g *Punto) lineWinner(row, col int) (Role, bool) {
	placed := g.board[row][col]

	dirs := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1

		r, c := row+d[0], col+d[1]
		for inBounds(r, c) && g.board[r][c] != nil && g.board[r][c].Color == placed.Color {
			count++
			r += d[0]
			c += d[1]
		}

		r, c = row-d[0], col-d[1]
		for inBounds(r, c) && g.board[r][c] != nil && g.board[r][c].Color == placed.Color {
			count++
			r -= d[0]
			c -= d[1]
		}

		if count >= winLength {
			return placed.Owner, true
		}
	}

	return "", false
}

func (g *Punto) exhausted() bool {
	for _, role := range []Role{RolePlayer1, RolePlayer2} {
		if len(g.hands[role]) > 0 || len(g.decks[role]) > 0 {
			return false
		}
	}
	return true
}

// resolveByValues settles an exhausted game: sum the values of the cells
// each role controls, higher total wins, equal totals draw.
func (g *Punto) resolveByValues() *Result {
	totals := map[Role]int{}
	for r := 0; r < BoardSize; r++ {
		for c := 0; c < BoardSize; c++ {
			if cell := g.board[r][c]; cell != nil {
				totals[cell.Owner] += cell.Value
			}
		}
	}

	switch {
	case totals[RolePlayer1] > totals[RolePlayer2]:
		return &Result{Winner: RolePlayer1, Reason: ReasonValueTiebreak}
	case totals[RolePlayer2] > totals[RolePlayer1]:
		return &Result{Winner: RolePlayer2, Reason: ReasonValueTiebreak}
	default:
		return &Result{Draw: true, Reason: ReasonDraw}
	}
}

func inBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}
