package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDeterministic(t *testing.T) {
	assert.Equal(t, Seed("room-a", 1), Seed("room-a", 1))
	assert.NotEqual(t, Seed("room-a", 1), Seed("room-a", 2))
	assert.NotEqual(t, Seed("room-a", 1), Seed("room-b", 1))
}

func TestNewSameSeedSameDeal(t *testing.T) {
	a := New(Seed("room-a", 1))
	b := New(Seed("room-a", 1))

	assert.Equal(t, a.Turn(), b.Turn())
	assert.Equal(t, a.Hand(RolePlayer1), b.Hand(RolePlayer1))
	assert.Equal(t, a.Hand(RolePlayer2), b.Hand(RolePlayer2))
}

func TestNewDealsHands(t *testing.T) {
	g := New(42)

	for _, role := range []Role{RolePlayer1, RolePlayer2} {
		hand := g.Hand(role)
		require.Len(t, hand, handSize)
		for _, card := range hand {
			assert.GreaterOrEqual(t, card.Value, 1)
			assert.LessOrEqual(t, card.Value, deckValuesPerColor)
			owner, ok := ColorOwner(card.Color)
			require.True(t, ok)
			assert.Equal(t, role, owner)
		}
	}

	assert.Contains(t, []Role{RolePlayer1, RolePlayer2}, g.Turn())
	assert.Equal(t, 0, g.MoveCount())
	assert.Nil(t, g.Result())
}

func TestColorOwner(t *testing.T) {
	for color, want := range map[Color]Role{
		Red:    RolePlayer1,
		Blue:   RolePlayer1,
		Green:  RolePlayer2,
		Yellow: RolePlayer2,
	} {
		got, ok := ColorOwner(color)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := ColorOwner(Color("purple"))
	assert.False(t, ok)
}

func TestPlaceRejections(t *testing.T) {
	g := New(7)
	mover := g.Turn()
	card := g.Hand(mover)[0]

	err := g.Place(mover.Other(), g.Hand(mover.Other())[0], 0, 0)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	err = g.Place(mover, card, -1, 3)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	err = g.Place(mover, card, 2, BoardSize)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	err = g.Place(mover, Card{Value: 5, Color: Color("purple")}, 0, 0)
	assert.ErrorIs(t, err, ErrUnknownColor)

	// A legal color for the opponent is never playable by the mover.
	oppColor := roleColors[mover.Other()][0]
	err = g.Place(mover, Card{Value: 5, Color: oppColor}, 0, 0)
	assert.ErrorIs(t, err, ErrCardNotHeld)
}

func TestPlaceFlipsTurnAndDraws(t *testing.T) {
	g := New(11)
	mover := g.Turn()
	card := g.Hand(mover)[0]

	require.NoError(t, g.Place(mover, card, 2, 3))

	assert.Equal(t, mover.Other(), g.Turn())
	assert.Equal(t, 1, g.MoveCount())
	assert.Len(t, g.Hand(mover), handSize)
	assert.NotContains(t, g.Hand(mover), card)

	cell := g.Cell(2, 3)
	require.NotNil(t, cell)
	assert.Equal(t, card.Value, cell.Value)
	assert.Equal(t, card.Color, cell.Color)
	assert.Equal(t, mover, cell.Owner)
}

func TestCaptureRequiresStrictlyHigher(t *testing.T) {
	g := New(3)
	g.turn = RolePlayer1
	g.board[1][1] = &Cell{Value: 4, Color: Green, Owner: RolePlayer2}

	g.hands[RolePlayer1] = []Card{{Value: 4, Color: Red}, {Value: 5, Color: Blue}}

	err := g.Place(RolePlayer1, Card{Value: 4, Color: Red}, 1, 1)
	assert.ErrorIs(t, err, ErrIllegalMove)

	require.NoError(t, g.Place(RolePlayer1, Card{Value: 5, Color: Blue}, 1, 1))
	cell := g.Cell(1, 1)
	require.NotNil(t, cell)
	assert.Equal(t, 5, cell.Value)
	assert.Equal(t, RolePlayer1, cell.Owner)
}

func TestCardMustBeHeld(t *testing.T) {
	g := New(9)
	g.turn = RolePlayer1
	g.hands[RolePlayer1] = []Card{{Value: 2, Color: Red}}

	err := g.Place(RolePlayer1, Card{Value: 8, Color: Red}, 0, 0)
	assert.ErrorIs(t, err, ErrCardNotHeld)
}

func TestFiveInLineWins(t *testing.T) {
	g := New(5)
	g.turn = RolePlayer1
	for col := 0; col < 4; col++ {
		g.board[2][col] = &Cell{Value: 3, Color: Red, Owner: RolePlayer1}
	}
	g.hands[RolePlayer1] = []Card{{Value: 6, Color: Red}}

	require.NoError(t, g.Place(RolePlayer1, Card{Value: 6, Color: Red}, 2, 4))

	result := g.Result()
	require.NotNil(t, result)
	assert.Equal(t, RolePlayer1, result.Winner)
	assert.Equal(t, ReasonFiveInLine, result.Reason)
	assert.False(t, result.Draw)

	err := g.Place(RolePlayer2, g.Hand(RolePlayer2)[0], 5, 5)
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestFiveInLineCompletedMidLine(t *testing.T) {
	g := New(5)
	g.turn = RolePlayer2
	for _, col := range []int{0, 1, 3, 4} {
		g.board[0][col] = &Cell{Value: 2, Color: Yellow, Owner: RolePlayer2}
	}
	g.hands[RolePlayer2] = []Card{{Value: 7, Color: Yellow}}

	require.NoError(t, g.Place(RolePlayer2, Card{Value: 7, Color: Yellow}, 0, 2))

	result := g.Result()
	require.NotNil(t, result)
	assert.Equal(t, RolePlayer2, result.Winner)
}

func TestFiveInLineDiagonal(t *testing.T) {
	g := New(5)
	g.turn = RolePlayer1
	for i := 0; i < 4; i++ {
		g.board[i][i] = &Cell{Value: 1, Color: Blue, Owner: RolePlayer1}
	}
	g.hands[RolePlayer1] = []Card{{Value: 9, Color: Blue}}

	require.NoError(t, g.Place(RolePlayer1, Card{Value: 9, Color: Blue}, 4, 4))

	result := g.Result()
	require.NotNil(t, result)
	assert.Equal(t, RolePlayer1, result.Winner)
	assert.Equal(t, ReasonFiveInLine, result.Reason)
}

func TestMixedColorsOfSameRoleDoNotWin(t *testing.T) {
	g := New(5)
	g.turn = RolePlayer1
	g.board[3][0] = &Cell{Value: 2, Color: Red, Owner: RolePlayer1}
	g.board[3][1] = &Cell{Value: 2, Color: Blue, Owner: RolePlayer1}
	g.board[3][2] = &Cell{Value: 2, Color: Red, Owner: RolePlayer1}
	g.board[3][3] = &Cell{Value: 2, Color: Blue, Owner: RolePlayer1}
	g.hands[RolePlayer1] = []Card{{Value: 6, Color: Red}}
	g.decks[RolePlayer1] = []Card{{Value: 1, Color: Red}}

	require.NoError(t, g.Place(RolePlayer1, Card{Value: 6, Color: Red}, 3, 4))

	assert.Nil(t, g.Result())
}

func TestValueTiebreakOnExhaustion(t *testing.T) {
	g := New(13)
	g.turn = RolePlayer1
	g.board[0][0] = &Cell{Value: 9, Color: Green, Owner: RolePlayer2}
	g.hands[RolePlayer1] = []Card{{Value: 3, Color: Red}}
	g.hands[RolePlayer2] = nil
	g.decks[RolePlayer1] = nil
	g.decks[RolePlayer2] = nil

	require.NoError(t, g.Place(RolePlayer1, Card{Value: 3, Color: Red}, 5, 5))

	result := g.Result()
	require.NotNil(t, result)
	assert.Equal(t, RolePlayer2, result.Winner)
	assert.Equal(t, ReasonValueTiebreak, result.Reason)
}

func TestExhaustionEqualTotalsDraws(t *testing.T) {
	g := New(13)
	g.turn = RolePlayer2
	g.board[0][0] = &Cell{Value: 4, Color: Red, Owner: RolePlayer1}
	g.hands[RolePlayer1] = nil
	g.hands[RolePlayer2] = []Card{{Value: 4, Color: Green}}
	g.decks[RolePlayer1] = nil
	g.decks[RolePlayer2] = nil

	require.NoError(t, g.Place(RolePlayer2, Card{Value: 4, Color: Green}, 1, 1))

	result := g.Result()
	require.NotNil(t, result)
	assert.True(t, result.Draw)
	assert.Empty(t, result.Winner)
	assert.Equal(t, ReasonDraw, result.Reason)
}

// Captured cells must count for the capturer, not the original owner.
func TestTiebreakCountsControlledCells(t *testing.T) {
	g := New(13)
	g.turn = RolePlayer1
	g.board[2][2] = &Cell{Value: 3, Color: Green, Owner: RolePlayer2}
	g.hands[RolePlayer1] = []Card{{Value: 7, Color: Red}}
	g.hands[RolePlayer2] = nil
	g.decks[RolePlayer1] = nil
	g.decks[RolePlayer2] = nil

	require.NoError(t, g.Place(RolePlayer1, Card{Value: 7, Color: Red}, 2, 2))

	result := g.Result()
	require.NotNil(t, result)
	assert.Equal(t, RolePlayer1, result.Winner)
}

func TestFullGameAlternatesToExhaustion(t *testing.T) {
	g := New(99)

	row, col := 0, 0
	for g.Result() == nil {
		mover := g.Turn()
		hand := g.Hand(mover)
		require.NotEmpty(t, hand)

		// Lowest card on a fresh cell keeps every move legal.
		card := hand[len(hand)-1]
		require.NoError(t, g.Place(mover, card, row, col))

		col++
		if col == BoardSize {
			col = 0
			row = (row + 1) % BoardSize
		}
		assert.Equal(t, mover.Other(), g.Turn())
	}

	result := g.Result()
	require.NotNil(t, result)
	assert.Contains(t, []string{ReasonFiveInLine, ReasonValueTiebreak, ReasonDraw}, result.Reason)
}
