package retrieval

import "math"

// MMRConfig 控制最大边际相关性（MMR）重排。
type MMRConfig struct {
	Enabled bool
	Lambda  float64
}

// Cosine 返回两个向量的余弦相似度，维度不一致或零向量时为 0。
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SelectMMR 从候选中按 λ·sim(q,d) − (1−λ)·max sim(d, 已选) 逐个贪心选出 n 个。
// 候选的 Score 应为与查询的相似度。返回结果保持选中顺序。
func SelectMMR(query []float32, cands []Candidate, n int, lambda float64) []Candidate {
	if n <= 0 || len(cands) == 0 {
		return nil
	}
	if lambda < 0 {
		lambda = 0
	} else if lambda > 1 {
		lambda = 1
	}

	relevance := make([]float64, len(cands))
	for i, c := range cands {
		if len(c.Vector) > 0 {
			relevance[i] = Cosine(query, c.Vector)
		} else {
			relevance[i] = c.Score
		}
	}

	selected := make([]Candidate, 0, n)
	used := make([]bool, len(cands))
	for len(selected) < n && len(selected) < len(cands) {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range cands {
			if used[i] {
				continue
			}
			redundancy := 0.0
			for j, s := range selected {
				if sim := Cosine(c.Vector, s.Vector); j == 0 || sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		picked := cands[best]
		picked.Score = relevance[best]
		selected = append(selected, picked)
	}
	return selected
}
