package mysql

// Establishment documents. Merge never touches the aggregate columns; those are
// owned by the review transaction.
const mergeEstablishmentSQL = `
INSERT INTO establishments
  (id, name, address, city, rating, lat, lon, image_url)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name      = VALUES(name),
  address   = VALUES(address),
  city      = COALESCE(VALUES(city), establishments.city),
  rating    = COALESCE(VALUES(rating), establishments.rating),
  lat       = COALESCE(VALUES(lat), establishments.lat),
  lon       = COALESCE(VALUES(lon), establishments.lon),
  image_url = COALESCE(VALUES(image_url), establishments.image_url)
`

const getEstablishmentSQL = `
SELECT id, name, address, city, rating, lat, lon, image_url, avg_rating, total_reviews
FROM establishments
WHERE id = ?
`

// -----------------------------------------------------------------------------
// REVIEW TRANSACTION
// -----------------------------------------------------------------------------

// Row lock on the parent: concurrent submissions serialize here, so each one
// reads the aggregate the previous one wrote.
const lockAggregateSQL = `
SELECT avg_rating, total_reviews
FROM establishments
WHERE id = ?
FOR UPDATE
`

const reviewOwnerSQL = `
SELECT user_id, establishment_id FROM establishment_reviews WHERE id = ? FOR UPDATE
`

const insertReviewSQL = `
INSERT INTO establishment_reviews
  (id, establishment_id, user_id, rating, docaria, comment, image_url, audio_url, timestamp_ms)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const refreshReviewMediaSQL = `
UPDATE establishment_reviews
SET image_url = COALESCE(?, image_url),
    audio_url = COALESCE(?, audio_url)
WHERE id = ?
`

const updateAggregateSQL = `
UPDATE establishments
SET avg_rating = ?, total_reviews = ?
WHERE id = ?
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const reviewColumns = `id, establishment_id, user_id, rating, docaria, comment, image_url, audio_url, timestamp_ms`

const listEstablishmentReviewsSQL = `
SELECT ` + reviewColumns + `
FROM establishment_reviews
WHERE establishment_id = ?
ORDER BY timestamp_ms DESC, id
`

// Collection-group style query: every review by one user across establishments.
const listUserReviewsSQL = `
SELECT ` + reviewColumns + `
FROM establishment_reviews
WHERE user_id = ?
ORDER BY timestamp_ms DESC, id
`

const lastUserReviewSQL = `
SELECT ` + reviewColumns + `
FROM establishment_reviews
WHERE establishment_id = ? AND user_id = ?
ORDER BY timestamp_ms DESC
LIMIT 1
`

const getUserSQL = `
SELECT id, email, username, created_at_ms FROM users WHERE id = ?
`

const putUserSQL = `
INSERT INTO users (id, email, username, created_at_ms)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  email    = VALUES(email),
  username = VALUES(username)
`
