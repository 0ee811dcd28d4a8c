// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package vectorstore

import (
	"math"
	"sort"

	"github.com/poiesic/lectern/core"
)

// MaximalMarginalRelevance reranks candidates so the selected set is
// both relevant to the query and internally diverse. The first pick is
// the highest-scoring candidate; each subsequent pick maximizes
//
//	lambda*sim(query, c) - (1-lambda)*max sim(c, selected)
//
// lambda 1 reduces to pure relevance ranking. Candidates without
// vectors cannot participate in the diversity term, so if none carry a
// vector the top k by raw score are returned unchanged. Each candidate
// is selected at most once.
func MaximalMarginalRelevance(query []float32, candidates []core.SearchHit, k int, lambda float64) []core.SearchHit {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	if lambda < 0 || lambda > 1 {
		lambda = DefaultLambda
	}

	ordered := make([]core.SearchHit, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	if len(query) == 0 || !anyVectors(ordered) {
		return ordered[:k]
	}

	// Relevance per candidate: cosine similarity to the query when a
	// vector is present, raw store score otherwise.
	relevance := make([]float64, len(ordered))
	for i, hit := range ordered {
		if len(hit.Vector) > 0 {
			relevance[i] = cosineSimilarity(query, hit.Vector)
		} else {
			relevance[i] = float64(hit.Score)
		}
	}

	selected := make([]core.SearchHit, 0, k)
	used := make([]bool, len(ordered))

	// ordered[0] has the highest raw score.
	selected = append(selected, ordered[0])
	used[0] = true

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i, hit := range ordered {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(hit.Vector) > 0 {
				for _, s := range selected {
					if len(s.Vector) == 0 {
						continue
					}
					if sim := cosineSimilarity(hit.Vector, s.Vector); sim > redundancy {
						redundancy = sim
					}
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, ordered[best])
		used[best] = true
	}
	return selected
}

func anyVectors(hits []core.SearchHit) bool {
	for _, hit := range hits {
		if len(hit.Vector) > 0 {
			return true
		}
	}
	return false
}

// cosineSimilarity computes the cosine of the angle between two
// vectors. Mismatched lengths compare over the shorter prefix; a zero
// vector yields 0.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
