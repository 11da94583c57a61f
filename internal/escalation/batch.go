package escalation

// Batch is the set of new items of one category in a cycle
type Batch struct {
	Category Category
	Items    []WorkItem
}

// AlertBatch groups the new items of a cycle by category
type AlertBatch struct {
	// Batches holds non-empty groups in category configuration order
	Batches []Batch
	// Unmatched holds new items no category claimed; they are never notified
	Unmatched []WorkItem
}

// BuildBatches classifies items and groups them by category, keeping arrival
// order within each group
func BuildBatches(items []WorkItem, classifier *Classifier) AlertBatch {
	grouped := map[string][]WorkItem{}
	var batch AlertBatch
	for _, item := range items {
		category, ok := classifier.Classify(item)
		if !ok {
			batch.Unmatched = append(batch.Unmatched, item)
			continue
		}
		grouped[category.Name] = append(grouped[category.Name], item)
	}

	for _, category := range classifier.Categories() {
		if members := grouped[category.Name]; len(members) > 0 {
			batch.Batches = append(batch.Batches, Batch{Category: category, Items: members})
		}
	}
	return batch
}

// Counts returns the number of items per category name
func (b AlertBatch) Counts() map[string]int {
	counts := make(map[string]int, len(b.Batches))
	for _, batch := range b.Batches {
		counts[batch.Category.Name] = len(batch.Items)
	}
	return counts
}
