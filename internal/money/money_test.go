package money

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type MoneySuite struct {
	suite.Suite
}

func TestMoneySuite(t *testing.T) {
	suite.Run(t, new(MoneySuite))
}

func (s *MoneySuite) TestParse() {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain dollars", input: "12", want: 1200},
		{name: "dollars and cents", input: "12.34", want: 1234},
		{name: "single fraction digit", input: "12.5", want: 1250},
		{name: "negative amount", input: "-0.50", want: -50},
		{name: "leading plus", input: "+3.21", want: 321},
		{name: "boundary cent rounds half up", input: "1.005", want: 101},
		{name: "below half rounds down", input: "1.004", want: 100},
		{name: "negative half rounds toward positive", input: "-1.005", want: -100},
		{name: "zero", input: "0", want: 0},
		{name: "whitespace trimmed", input: "  7.70 ", want: 770},
		{name: "empty rejected", input: "", wantErr: true},
		{name: "garbage rejected", input: "12x.00", wantErr: true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			got, err := Parse(tt.input)
			if tt.wantErr {
				s.Error(err)
				return
			}
			s.Require().NoError(err)
			s.Equal(tt.want, got.Cents())
		})
	}
}

func (s *MoneySuite) TestFormat() {
	tests := []struct {
		name  string
		cents int64
		want  string
	}{
		{name: "zero", cents: 0, want: "$0.00"},
		{name: "cents only", cents: 7, want: "$0.07"},
		{name: "no separator under a thousand", cents: 99999, want: "$999.99"},
		{name: "thousands separator", cents: 123456, want: "$1,234.56"},
		{name: "millions", cents: 123456789, want: "$1,234,567.89"},
		{name: "negative sign before symbol", cents: -50, want: "-$0.50"},
		{name: "negative with separators", cents: -1000000, want: "-$10,000.00"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, FromCents(tt.cents).Format())
		})
	}
}

func (s *MoneySuite) TestScale() {
	tests := []struct {
		name    string
		cents   int64
		percent float64
		want    int64
	}{
		{name: "whole percent", cents: 1000, percent: 1.5, want: 15},
		{name: "half cent rounds up", cents: 1000, percent: 1.55, want: 16},
		{name: "just below half rounds down", cents: 1000, percent: 1.54, want: 15},
		{name: "zero percent returns zero", cents: 1234, percent: 0, want: 0},
		{name: "hundred percent is identity", cents: 1234, percent: 100, want: 1234},
		{name: "tie rounds up", cents: 50, percent: 1, want: 1},
		{name: "negative tie rounds toward positive", cents: -50, percent: 1, want: 0},
		{name: "markup style percentage", cents: 10000, percent: 15.5, want: 1550},
		{name: "zero amount", cents: 0, percent: 99.9, want: 0},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, FromCents(tt.cents).Scale(tt.percent).Cents())
		})
	}
}

func (s *MoneySuite) TestApplyMarkup() {
	s.Run("zero markup is identity", func() {
		for _, cents := range []int64{-999, -1, 0, 1, 57, 1000, 123456789} {
			s.Equal(cents, FromCents(cents).ApplyMarkup(0).Cents())
		}
	})

	s.Run("markup equals amount plus scale", func() {
		for _, cents := range []int64{1, 99, 1000, 10001, 987654} {
			m := FromCents(cents)
			for _, pct := range []float64{0.5, 1, 2.35, 15.5, 100} {
				s.Equal(m.Add(m.Scale(pct)), m.ApplyMarkup(pct),
					"amount=%d pct=%v", cents, pct)
			}
		}
	})

	s.Run("fifteen and a half percent on a hundred dollars", func() {
		s.Equal(int64(11550), FromCents(10000).ApplyMarkup(15.5).Cents())
	})
}

func (s *MoneySuite) TestArithmetic() {
	s.Run("add and sub", func() {
		s.Equal(int64(150), FromCents(100).Add(FromCents(50)).Cents())
		s.Equal(int64(-25), FromCents(25).Sub(FromCents(50)).Cents())
	})

	s.Run("cmp is three-way", func() {
		s.Equal(-1, FromCents(1).Cmp(FromCents(2)))
		s.Equal(0, FromCents(2).Cmp(FromCents(2)))
		s.Equal(1, FromCents(3).Cmp(FromCents(2)))
	})

	s.Run("abs and sign", func() {
		s.Equal(int64(70), FromCents(-70).Abs().Cents())
		s.Equal(int64(70), FromCents(70).Abs().Cents())
		s.Equal(-1, FromCents(-1).Sign())
		s.Equal(0, FromCents(0).Sign())
		s.Equal(1, FromCents(1).Sign())
		s.True(FromCents(-1).IsNegative())
		s.False(FromCents(0).IsNegative())
	})
}
