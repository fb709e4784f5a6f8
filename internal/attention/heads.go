package attention

import (
	"fmt"
	"math"

	"github.com/lazypower/salience/internal/atom"
	"github.com/lazypower/salience/internal/tensor"
)

// newHeads allocates AttentionHeads heads with Xavier-initialized [D, D/h]
// projections and scale 1/sqrt(D/h).
func (e *Engine) newHeads() ([]Head, error) {
	d := e.cfg.EmbeddingDim
	hd := e.cfg.headDim()
	heads := make([]Head, e.cfg.AttentionHeads)
	for h := range heads {
		q, err := e.projection(fmt.Sprintf("head%d.query", h), d, hd)
		if err != nil {
			return nil, err
		}
		k, err := e.projection(fmt.Sprintf("head%d.key", h), d, hd)
		if err != nil {
			return nil, err
		}
		v, err := e.projection(fmt.Sprintf("head%d.value", h), d, hd)
		if err != nil {
			return nil, err
		}
		heads[h] = Head{
			ID:    h,
			Scale: 1 / math.Sqrt(float64(hd)),
			Query: q,
			Key:   k,
			Value: v,
		}
	}
	return heads, nil
}

func (e *Engine) projection(name string, d, hd int) (*tensor.Tensor, error) {
	p, err := tensor.New(name, d, hd)
	if err != nil {
		return nil, fmt.Errorf("allocate %s: %w", name, err)
	}
	tensor.XavierUniform(p, d, hd, e.rng)
	return p, nil
}

// headShape returns the embedding width and head width of the allocated
// projections. Heads survive UpdateConfig, so the config may disagree.
func (e *Engine) headShape() (d, hd int) {
	shape := e.state.Heads[0].Query.Shape()
	return shape[0], shape[1]
}

// usableEmbeddings returns the embeddings of width d, in batch order.
func usableEmbeddings(nodes []*atom.Node, d int) []*tensor.Tensor {
	var out []*tensor.Tensor
	for _, n := range nodes {
		if n == nil || n.Embedding == nil || n.Embedding.Len() != d {
			continue
		}
		out = append(out, n.Embedding)
	}
	return out
}

// MultiHeadSelfAttention is a reduced approximation of self-attention: per
// head, the only logit is the first node's query against the first node's
// key, which is scaled and softmaxed and then weights the first node's value.
// Head outputs are averaged into a [D/heads] tensor. It is an extension point
// and is not used by the allocation mechanisms; see AllPairsSelfAttention for
// the full computation.
//
// It returns ErrNotInitialized before Initialize, and (nil, nil) when no node
// has an embedding as wide as the projections.
func (e *Engine) MultiHeadSelfAttention(nodes []*atom.Node) (*tensor.Tensor, error) {
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	if len(e.state.Heads) == 0 {
		return nil, nil
	}
	d, hd := e.headShape()
	embs := usableEmbeddings(nodes, d)
	if len(embs) == 0 {
		return nil, nil
	}
	first := embs[0]

	sum := tensor.Vector("multi_head", make([]float64, hd))
	for _, h := range e.state.Heads {
		q, err := tensor.MatMul(first, h.Query)
		if err != nil {
			return nil, fmt.Errorf("head %d query: %w", h.ID, err)
		}
		k, err := tensor.MatMul(first, h.Key)
		if err != nil {
			return nil, fmt.Errorf("head %d key: %w", h.ID, err)
		}
		v, err := tensor.MatMul(first, h.Value)
		if err != nil {
			return nil, fmt.Errorf("head %d value: %w", h.ID, err)
		}
		logit, err := tensor.Dot(q, k)
		if err != nil {
			return nil, fmt.Errorf("head %d logit: %w", h.ID, err)
		}
		probs := tensor.Softmax(tensor.Scalar("logit", logit*h.Scale))
		out, err := tensor.Mul(v, probs)
		if err != nil {
			return nil, fmt.Errorf("head %d output: %w", h.ID, err)
		}
		if sum, err = tensor.Add(sum, out); err != nil {
			return nil, fmt.Errorf("head %d accumulate: %w", h.ID, err)
		}
	}
	return tensor.Scale(sum, 1/float64(len(e.state.Heads))), nil
}

// AllPairsSelfAttention computes softmax(Q Kᵀ · scale) V per head over every
// usable node and averages the heads, giving an [N, D/heads] tensor. Like
// MultiHeadSelfAttention it never feeds the allocation mechanisms.
func (e *Engine) AllPairsSelfAttention(nodes []*atom.Node) (*tensor.Tensor, error) {
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	if len(e.state.Heads) == 0 {
		return nil, nil
	}
	d, hd := e.headShape()
	embs := usableEmbeddings(nodes, d)
	if len(embs) == 0 {
		return nil, nil
	}
	n := len(embs)

	stacked := make([]float64, 0, n*d)
	for _, emb := range embs {
		stacked = append(stacked, emb.Data()...)
	}
	x, err := tensor.FromSlice("embeddings", stacked, n, d)
	if err != nil {
		return nil, fmt.Errorf("stack embeddings: %w", err)
	}

	acc := make([]float64, n*hd)
	for _, h := range e.state.Heads {
		q, err := tensor.MatMul(x, h.Query)
		if err != nil {
			return nil, fmt.Errorf("head %d query: %w", h.ID, err)
		}
		k, err := tensor.MatMul(x, h.Key)
		if err != nil {
			return nil, fmt.Errorf("head %d key: %w", h.ID, err)
		}
		v, err := tensor.MatMul(x, h.Value)
		if err != nil {
			return nil, fmt.Errorf("head %d value: %w", h.ID, err)
		}
		qd, kd, vd := q.Data(), k.Data(), v.Data()

		logits := make([]float64, n)
		for i := 0; i < n; i++ {
			qi := qd[i*hd : (i+1)*hd]
			for j := 0; j < n; j++ {
				kj := kd[j*hd : (j+1)*hd]
				dot := 0.0
				for c := range qi {
					dot += qi[c] * kj[c]
				}
				logits[j] = dot * h.Scale
			}
			probs := tensor.Softmax(tensor.Vector("logits", logits)).Data()
			out := acc[i*hd : (i+1)*hd]
			for j, p := range probs {
				vj := vd[j*hd : (j+1)*hd]
				for c := range out {
					out[c] += p * vj[c]
				}
			}
		}
	}

	inv := 1 / float64(len(e.state.Heads))
	for i := range acc {
		acc[i] *= inv
	}
	return tensor.FromSlice("all_pairs", acc, n, hd)
}
