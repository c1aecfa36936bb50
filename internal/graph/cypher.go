package graph

import "fmt"

// Index and constraint names. The vector index dimension is fixed at
// creation; changing the embedding model requires dropping them.
const (
	factVectorIndex     = "fact_embedding_idx"
	entityVectorIndex   = "entity_name_embedding_idx"
	factFulltextIndex   = "fact_fulltext_idx"
	relatesToGroupIndex = "relates_to_group_idx"
	episodeGroupIndex   = "episode_group_idx"
)

// schemaStatements returns the idempotent DDL run by EnsureIndices.
func schemaStatements(dim int) []string {
	return []string{
		`CREATE CONSTRAINT episode_uuid IF NOT EXISTS
		   FOR (ep:Episode) REQUIRE ep.uuid IS UNIQUE`,
		`CREATE CONSTRAINT entity_key IF NOT EXISTS
		   FOR (n:Entity) REQUIRE (n.group_id, n.entity_type, n.canonical_name) IS UNIQUE`,
		`CREATE CONSTRAINT community_uuid IF NOT EXISTS
		   FOR (c:Community) REQUIRE c.uuid IS UNIQUE`,
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS
		   FOR ()-[r:RELATES_TO]-() ON (r.group_id)`, relatesToGroupIndex),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS
		   FOR (ep:Episode) ON (ep.group_id, ep.reference_time)`, episodeGroupIndex),
		fmt.Sprintf(`CREATE FULLTEXT INDEX %s IF NOT EXISTS
		   FOR ()-[r:RELATES_TO]-() ON EACH [r.fact, r.name]`, factFulltextIndex),
		fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS\n"+
			"  FOR ()-[r:RELATES_TO]-() ON (r.fact_embedding)\n"+
			"  OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
			factVectorIndex, dim),
		fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS\n"+
			"  FOR (n:Entity) ON (n.name_embedding)\n"+
			"  OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
			entityVectorIndex, dim),
	}
}

// edgeProjection is appended to every query returning fact edges. It expects
// e, s and t bound to the relationship and its endpoints.
const edgeProjection = `
RETURN e.uuid AS uuid, e.group_id AS group_id, e.name AS name, e.fact AS fact,
       e.episode_uuid AS episode_uuid, e.reference_time AS reference_time,
       e.valid_at AS valid_at, e.invalid_at AS invalid_at, e.created_at AS created_at,
       s.uuid AS source_uuid, s.name AS source_name, s.entity_type AS source_type,
       t.uuid AS target_uuid, t.name AS target_name, t.entity_type AS target_type`

const cypherMergeEpisode = `
MERGE (ep:Episode {uuid: $uuid})
SET ep.group_id = $group_id,
    ep.name = $name,
    ep.content = $content,
    ep.kind = $kind,
    ep.source_media_ref = $source_media_ref,
    ep.reference_time = $reference_time,
    ep.created_at = $created_at`

const cypherMergeEntities = `
UNWIND $entities AS row
MERGE (n:Entity {group_id: $group_id, entity_type: row.entity_type, canonical_name: row.canonical_name})
  ON CREATE SET n.uuid = row.uuid, n.name = row.name, n.created_at = row.created_at
SET n.summary = CASE WHEN row.summary <> '' THEN row.summary ELSE n.summary END,
    n.name_embedding = coalesce(row.name_embedding, n.name_embedding)
WITH n
MATCH (ep:Episode {uuid: $episode_uuid})
MERGE (ep)-[:MENTIONS]->(n)`

const cypherCreateEdges = `
UNWIND $edges AS row
MATCH (s:Entity {group_id: $group_id, entity_type: row.source_type, canonical_name: row.source_key})
MATCH (t:Entity {group_id: $group_id, entity_type: row.target_type, canonical_name: row.target_key})
CREATE (s)-[e:RELATES_TO]->(t)
SET e += row.props
RETURN count(e) AS created`

const cypherInvalidate = `
UNWIND $invalidations AS row
MATCH ()-[e:RELATES_TO {uuid: row.uuid}]->()
WHERE e.group_id = $group_id AND e.invalid_at IS NULL
SET e.invalid_at = row.invalid_at`

const cypherVectorSearch = `
CALL db.index.vector.queryRelationships($index, $k, $vector)
YIELD relationship AS e, score
WHERE e.group_id = $group_id
  AND ($include_history OR e.invalid_at IS NULL OR e.invalid_at > $as_of)
WITH e, score, startNode(e) AS s, endNode(e) AS t` + edgeProjection + `, score
ORDER BY score DESC
LIMIT $limit`

const cypherFulltextSearch = `
CALL db.index.fulltext.queryRelationships($index, $query)
YIELD relationship AS e, score
WHERE e.group_id = $group_id
  AND ($include_history OR e.invalid_at IS NULL OR e.invalid_at > $as_of)
WITH e, score, startNode(e) AS s, endNode(e) AS t` + edgeProjection + `, score
ORDER BY score DESC
LIMIT $limit`

const cypherChildEdges = `
MATCH (s:Entity {group_id: $group_id, entity_type: 'Child'})-[e:RELATES_TO]->(t:Entity {group_id: $group_id, entity_type: 'InterestDimension'})
WITH e, s, t` + edgeProjection + `
ORDER BY valid_at ASC, created_at ASC`

const cypherActiveEdgesFor = `
MATCH (s:Entity {group_id: $group_id, entity_type: $entity_type, canonical_name: $canonical_name})-[e:RELATES_TO {name: $predicate}]->(t:Entity)
WHERE e.invalid_at IS NULL
WITH e, s, t` + edgeProjection + `
ORDER BY valid_at ASC`

const cypherListEdges = `
MATCH (s:Entity {group_id: $group_id})-[e:RELATES_TO]->(t:Entity)
WHERE $include_invalid OR e.invalid_at IS NULL
WITH e, s, t` + edgeProjection + `
ORDER BY valid_at ASC, created_at ASC`

const cypherRecentEpisodes = `
MATCH (ep:Episode {group_id: $group_id})
RETURN ep.uuid AS uuid, ep.name AS name, ep.content AS content, ep.kind AS kind,
       ep.source_media_ref AS source_media_ref, ep.reference_time AS reference_time,
       ep.created_at AS created_at
ORDER BY reference_time DESC
LIMIT $limit`

const cypherListEntities = `
MATCH (n:Entity {group_id: $group_id})
RETURN n.uuid AS uuid, n.name AS name, n.canonical_name AS canonical_name,
       n.entity_type AS entity_type, n.summary AS summary, n.created_at AS created_at
ORDER BY entity_type, canonical_name`

const cypherDeleteNamespace = `
MATCH (n)
WHERE (n:Episode OR n:Entity OR n:Community) AND n.group_id = $group_id
DETACH DELETE n`

const cypherDeleteCommunities = `
MATCH (c:Community {group_id: $group_id})
DETACH DELETE c`

const cypherCreateCommunities = `
UNWIND $communities AS row
CREATE (c:Community {uuid: row.uuid, group_id: $group_id, name: row.name,
                     summary: row.summary, created_at: row.created_at})
WITH c, row
UNWIND row.member_uuids AS member
MATCH (n:Entity {uuid: member, group_id: $group_id})
MERGE (c)-[:HAS_MEMBER]->(n)`

const cypherListCommunities = `
MATCH (c:Community {group_id: $group_id})
OPTIONAL MATCH (c)-[:HAS_MEMBER]->(n:Entity)
WITH c, collect(n.uuid) AS members
RETURN c.uuid AS uuid, c.name AS name, c.summary AS summary,
       c.created_at AS created_at, members
ORDER BY name`
