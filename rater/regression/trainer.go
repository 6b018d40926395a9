package regression

import (
	"context"
	"math/rand/v2"

	"github.com/w-h-a/recommender/rater"
)

// fit runs mini-batch gradient descent on half the mean squared error.
// The learning rate warms up linearly over WarmupSteps and then decays
// linearly towards zero over the remaining steps. Weight decay is decoupled from the
// gradient and never touches the bias.
func fit(ctx context.Context, xs []features, ys []float64, lexicalDim, semanticDim int, cfg rater.TrainConfig) (*Head, error) {
	head := &Head{
		Bias:     mean(ys),
		Lexical:  make([]float64, lexicalDim),
		Semantic: make([]float64, semanticDim),
	}

	n := len(xs)
	stepsPerEpoch := (n + cfg.BatchSize - 1) / cfg.BatchSize
	total := cfg.Epochs * stepsPerEpoch

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	gradLexical := make([]float64, lexicalDim)
	gradSemantic := make([]float64, semanticDim)

	step := 0
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng.Shuffle(n, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		for start := 0; start < n; start += cfg.BatchSize {
			batch := order[start:min(start+cfg.BatchSize, n)]

			clear(gradLexical)
			clear(gradSemantic)
			var gradBias float64

			for _, i := range batch {
				residual := head.Forward(xs[i]) - ys[i]
				gradBias += residual
				for j, v := range xs[i].lexical {
					gradLexical[j] += residual * v
				}
				for j, v := range xs[i].semantic {
					gradSemantic[j] += residual * v
				}
			}

			scale := 1 / float64(len(batch))
			lr := learningRate(cfg, step, total)
			decay := 1 - lr*cfg.WeightDecay

			head.Bias -= lr * gradBias * scale
			for j := range head.Lexical {
				head.Lexical[j] = head.Lexical[j]*decay - lr*gradLexical[j]*scale
			}
			for j := range head.Semantic {
				head.Semantic[j] = head.Semantic[j]*decay - lr*gradSemantic[j]*scale
			}

			step++
		}
	}

	return head, nil
}

func learningRate(cfg rater.TrainConfig, step, total int) float64 {
	if step < cfg.WarmupSteps {
		return cfg.LearningRate * float64(step+1) / float64(cfg.WarmupSteps)
	}

	remaining := total - cfg.WarmupSteps
	if remaining <= 0 {
		return cfg.LearningRate
	}

	return cfg.LearningRate * float64(total-step) / float64(remaining)
}

func mean(ys []float64) float64 {
	if len(ys) == 0 {
		return 0
	}

	var sum float64
	for _, y := range ys {
		sum += y
	}

	return sum / float64(len(ys))
}
