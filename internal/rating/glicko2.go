// internal/rating/glicko2.go
package rating

import "math"

const (
	// Scale is the multiplier converting between the 1500-based display
	// rating and Glicko-2's internal mu.
	Scale = 173.7178
	// DefaultRating is the baseline display rating for new players.
	DefaultRating = 1500.0
	// DefaultRD is the baseline rating deviation for new players.
	DefaultRD = 350.0
	// DefaultVolatility is the starting volatility.
	DefaultVolatility = 0.06
	// Tau constrains how fast volatility may change.
	Tau = 0.5
	// Epsilon is the volatility iteration stopping tolerance.
	Epsilon = 0.000001
)

// Player holds one competitor's rating state on the display scale. Zero
// values are normalized to the Glicko-2 defaults, so a fresh player can be
// passed as Player{}.
type Player struct {
	Rating     float64
	RD         float64
	Volatility float64
}

func (p Player) normalized() Player {
	if p.Rating == 0 {
		p.Rating = DefaultRating
	}
	if p.RD == 0 {
		p.RD = DefaultRD
	}
	if p.Volatility == 0 {
		p.Volatility = DefaultVolatility
	}
	return p
}

// toGlicko converts to internal (mu, phi) space.
func (p Player) toGlicko() (mu, phi float64) {
	return (p.Rating - DefaultRating) / Scale, p.RD / Scale
}

// Update1v1 applies one head-to-head result and returns both players'
// updated rating state. The winner scores 1, the loser 0.
func Update1v1(winner, loser Player) (Player, Player) {
	winner = winner.normalized()
	loser = loser.normalized()
	return updateOne(winner, loser, 1.0), updateOne(loser, winner, 0.0)
}

// updateOne runs the single-match Glicko-2 update for p against opp with
// the given score, including the iterative volatility step.
func updateOne(p, opp Player, score float64) Player {
	mu, phi := p.toGlicko()
	muOpp, phiOpp := opp.toGlicko()
	sigma := p.Volatility

	gVal := g(phiOpp)
	eVal := expected(mu, muOpp, phiOpp)
	v := 1.0 / (gVal * gVal * eVal * (1 - eVal))
	delta := v * gVal * (score - eVal)

	a := math.Log(sigma * sigma)
	bigA := a
	var bigB float64
	if delta*delta > phi*phi+v {
		bigB = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for volF(a-k*Tau, phi, v, delta, a) < 0 {
			k++
		}
		bigB = a - k*Tau
	}

	fA := volF(bigA, phi, v, delta, a)
	fB := volF(bigB, phi, v, delta, a)
	for math.Abs(bigA-bigB) > Epsilon {
		bigC := bigA + (bigA-bigB)*fA/(fB-fA)
		fC := volF(bigC, phi, v, delta, a)
		if fC*fB <= 0 {
			bigA, fA = bigB, fB
		} else {
			fA = fA / 2
		}
		bigB, fB = bigC, fC
	}

	newSigma := math.Exp(bigA / 2)
	phiStar := math.Sqrt(phi*phi + newSigma*newSigma)
	phiPrime := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	muPrime := mu + phiPrime*phiPrime*gVal*(score-eVal)

	return Player{
		Rating:     muPrime*Scale + DefaultRating,
		RD:         phiPrime * Scale,
		Volatility: newSigma,
	}
}

// g dampens an opponent's influence by their rating deviation.
func g(phi float64) float64 {
	return 1.0 / math.Sqrt(1.0+3.0*phi*phi/(math.Pi*math.Pi))
}

// expected is the Glicko-2 expected score of mu against (mu2, phi2).
func expected(mu, mu2, phi2 float64) float64 {
	return 1.0 / (1.0 + math.Exp(-g(phi2)*(mu-mu2)))
}

// volF is the volatility root-finding function from the Glicko-2 paper.
func volF(x, phi, v, delta, a float64) float64 {
	ex := math.Exp(x)
	num := ex * (delta*delta - phi*phi - v - ex)
	den := 2.0 * (phi*phi + v + ex) * (phi*phi + v + ex)
	return num/den - (x-a)/(Tau*Tau)
}
